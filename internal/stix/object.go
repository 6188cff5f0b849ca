package stix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Object types we care about.
const (
	TypeIndicator = "indicator"
	TypeBundle    = "bundle"
)

// Object is a permissively decoded STIX object. Only the fields the
// aggregator reads are typed; everything else stays in Raw. Missing or
// unknown fields decode to their zero value (or nil for the timestamp
// pointers) rather than failing the whole object.
type Object struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Pattern     string `json:"pattern"`
	Value       string `json:"value"` // legacy indicator shape
	Description string `json:"description"`

	// Timestamp fields keep explicit presence via pointers: a STIX feed
	// that omits valid_from is different from one that sends "".
	ValidFrom *string `json:"valid_from"`
	LastSeen  *string `json:"last_seen"`
	Created   *string `json:"created"`
	Modified  *string `json:"modified"`

	// Bundle contents. Empty for plain objects.
	Objects []json.RawMessage `json:"objects"`

	// Raw preserves the original wire bytes for detail display.
	Raw json.RawMessage `json:"-"`
}

// Decode parses raw bytes into an Object, keeping the original payload.
func Decode(raw json.RawMessage) (Object, error) {
	var obj Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Object{}, fmt.Errorf("decode stix object: %w", err)
	}
	obj.Raw = append(json.RawMessage(nil), raw...)
	return obj, nil
}

// IsBundle reports whether the object is a STIX Bundle container.
func (o Object) IsBundle() bool {
	return o.Type == TypeBundle
}

// Indicators returns the indicator objects represented by o: the contained
// indicators for a Bundle, o itself as a singleton when it is an indicator,
// and nothing otherwise. Contained objects that fail to decode are skipped
// and reported in the second return value so callers can log them.
func (o Object) Indicators() ([]Object, []error) {
	if !o.IsBundle() {
		if o.Type == TypeIndicator {
			return []Object{o}, nil
		}
		return nil, nil
	}

	var (
		indicators []Object
		skipped    []error
	)
	for i, raw := range o.Objects {
		inner, err := Decode(raw)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("bundle %s object %d: %w", o.ID, i, err))
			continue
		}
		if inner.Type == TypeIndicator {
			indicators = append(indicators, inner)
		}
	}
	return indicators, skipped
}

// timestampLayouts are tried in order when rendering STIX timestamps.
// STIX mandates RFC 3339, but feeds in the wild are looser.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

const displayLayout = "2006-01-02 15:04:05"

// renderTimestamp formats a timestamp field for display. Absent fields
// render as the given sentinel; unparseable values pass through verbatim.
func renderTimestamp(ts *string, sentinel string) string {
	if ts == nil || *ts == "" {
		return sentinel
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, *ts); err == nil {
			return t.Format(displayLayout)
		}
	}
	return *ts
}

// prettyJSON re-indents raw JSON for diagnostic display.
func prettyJSON(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
