package stix

import "encoding/json"

// Indicator is the flat record the aggregator stores and serves. Timestamp
// fields are display strings: "N/A" when first/last-seen is absent, empty
// when created/modified is absent. That asymmetry matches the upstream
// consumers of the indicator store.
type Indicator struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	Description string `json:"description"`
	FirstSeen   string `json:"first_seen"`
	LastSeen    string `json:"last_seen"`
	Created     string `json:"created"`
	Modified    string `json:"modified"`
	Source      string `json:"source"`
	FeedSource  string `json:"feed_source,omitempty"`
	Raw         string `json:"raw,omitempty"`
}

// Normalize maps a decoded STIX object into a flat Indicator attributed to
// the given source label (the configured collection title).
func Normalize(obj Object, source string) Indicator {
	value := obj.Pattern
	if obj.Value != "" {
		// Legacy indicator shape carries the observable directly.
		value = obj.Value
	}

	return Indicator{
		ID:          obj.ID,
		Type:        obj.Type,
		Value:       value,
		Description: obj.Description,
		FirstSeen:   renderTimestamp(obj.ValidFrom, "N/A"),
		LastSeen:    renderTimestamp(obj.LastSeen, "N/A"),
		Created:     renderTimestamp(obj.Created, ""),
		Modified:    renderTimestamp(obj.Modified, ""),
		Source:      source,
	}
}

// NormalizeDetail is Normalize plus the pretty-printed source object for
// diagnostic display. When the original bytes are unavailable it falls back
// to serializing the flat record itself.
func NormalizeDetail(obj Object, source string) Indicator {
	ind := Normalize(obj, source)
	if len(obj.Raw) > 0 {
		if pretty, err := prettyJSON(obj.Raw); err == nil {
			ind.Raw = pretty
			return ind
		}
	}
	if fallback, err := json.MarshalIndent(ind, "", "  "); err == nil {
		ind.Raw = string(fallback)
	}
	return ind
}
