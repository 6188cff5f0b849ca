package taxii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"taxiiwatch/internal/stix"
)

// FetchIndicators resolves the configured collection title and walks the
// object feed page by page, normalizing every indicator it finds.
//
// Failure is graceful at every level: a resolve failure yields no
// indicators, a bad item is logged and skipped, and a failed page returns
// whatever was accumulated before it together with the error. The caller
// decides whether partial results are worth keeping.
func (c *Client) FetchIndicators(ctx context.Context) ([]stix.Indicator, error) {
	collectionID, err := c.ResolveCollection(ctx)
	if err != nil {
		return nil, err
	}

	var indicators []stix.Indicator
	for page := 1; ; page++ {
		env, err := c.Objects(ctx, collectionID, page)
		if err != nil {
			c.logger.Printf("page %d of collection %s failed, keeping %d indicators: %v",
				page, collectionID, len(indicators), err)
			return indicators, fmt.Errorf("fetch page %d: %w", page, err)
		}

		// An empty page means the feed is exhausted no matter what the
		// continuation flag claims; servers have been seen reporting
		// more=true forever.
		if len(env.Objects) == 0 {
			break
		}

		indicators = append(indicators, c.normalizePage(env.Objects)...)

		if !env.More {
			break
		}
	}
	return indicators, nil
}

// normalizePage unwraps, decodes, and normalizes the items of one envelope
// page. Bad items are logged and dropped, never failing the page.
func (c *Client) normalizePage(items []json.RawMessage) []stix.Indicator {
	var out []stix.Indicator
	for i, item := range items {
		obj, err := stix.Decode(unwrapItem(item))
		if err != nil {
			c.logger.Printf("skipping object %d: %v", i, err)
			continue
		}
		found, skipped := obj.Indicators()
		for _, skip := range skipped {
			c.logger.Printf("skipping bundle member: %v", skip)
		}
		for _, ind := range found {
			out = append(out, stix.Normalize(ind, c.collectionTitle))
		}
	}
	return out
}

// LookupIndicator fetches a single object by id and returns its detail
// record, including the pretty-printed source object.
func (c *Client) LookupIndicator(ctx context.Context, objectID string) (stix.Indicator, error) {
	collectionID, err := c.ResolveCollection(ctx)
	if err != nil {
		return stix.Indicator{}, err
	}

	env, err := c.Object(ctx, collectionID, objectID)
	if err != nil {
		return stix.Indicator{}, err
	}
	for _, item := range env.Objects {
		obj, err := stix.Decode(unwrapItem(item))
		if err != nil {
			c.logger.Printf("skipping undecodable detail item for %s: %v", objectID, err)
			continue
		}
		found, _ := obj.Indicators()
		for _, ind := range found {
			if ind.ID == objectID || len(env.Objects) == 1 {
				return stix.NormalizeDetail(ind, c.collectionTitle), nil
			}
		}
	}
	return stix.Indicator{}, fmt.Errorf("%w: object %q", ErrNotFound, objectID)
}

// unwrapItem strips the single-element array nesting some ingestion
// envelopes put around each object ([[item]] instead of [item]). It peels
// layers until a non-array value remains; an empty wrapper passes through
// unchanged and fails decoding downstream.
func unwrapItem(item json.RawMessage) json.RawMessage {
	for {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return item
		}
		var wrapper []json.RawMessage
		if err := json.Unmarshal(trimmed, &wrapper); err != nil || len(wrapper) == 0 {
			return item
		}
		item = wrapper[0]
	}
}
