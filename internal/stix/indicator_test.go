package stix

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeModernIndicator(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "indicator--1f2e",
		"type": "indicator",
		"pattern": "[ipv4-addr:value = '203.0.113.9']",
		"description": "Known scanner",
		"valid_from": "2024-03-01T10:30:00Z",
		"created": "2024-02-28T00:00:00Z",
		"modified": "2024-03-02T08:15:30Z"
	}`)

	obj, err := Decode(raw)
	require.NoError(t, err)

	ind := Normalize(obj, "Public Indicators")
	assert.Equal(t, "indicator--1f2e", ind.ID)
	assert.Equal(t, "indicator", ind.Type)
	assert.Equal(t, "[ipv4-addr:value = '203.0.113.9']", ind.Value)
	assert.Equal(t, "Known scanner", ind.Description)
	assert.Equal(t, "2024-03-01 10:30:00", ind.FirstSeen)
	assert.Equal(t, "N/A", ind.LastSeen, "absent last_seen renders as N/A")
	assert.Equal(t, "2024-02-28 00:00:00", ind.Created)
	assert.Equal(t, "2024-03-02 08:15:30", ind.Modified)
	assert.Equal(t, "Public Indicators", ind.Source)
}

func TestNormalizeLegacyValueWinsOverPattern(t *testing.T) {
	obj, err := Decode(json.RawMessage(`{
		"id": "indicator--legacy",
		"type": "indicator",
		"pattern": "[domain-name:value = 'bad.example']",
		"value": "bad.example"
	}`))
	require.NoError(t, err)

	ind := Normalize(obj, "feed")
	assert.Equal(t, "bad.example", ind.Value)
}

func TestNormalizeSentinelAsymmetry(t *testing.T) {
	// No timestamps at all: first/last seen use the N/A sentinel,
	// created/modified stay empty.
	obj, err := Decode(json.RawMessage(`{"id": "indicator--bare", "type": "indicator"}`))
	require.NoError(t, err)

	ind := Normalize(obj, "feed")
	assert.Equal(t, "N/A", ind.FirstSeen)
	assert.Equal(t, "N/A", ind.LastSeen)
	assert.Equal(t, "", ind.Created)
	assert.Equal(t, "", ind.Modified)
}

func TestNormalizeUnparseableTimestampPassesThrough(t *testing.T) {
	obj, err := Decode(json.RawMessage(`{
		"id": "indicator--odd",
		"type": "indicator",
		"valid_from": "sometime last week"
	}`))
	require.NoError(t, err)

	assert.Equal(t, "sometime last week", Normalize(obj, "feed").FirstSeen)
}

func TestRenderTimestampLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2024-03-01T10:30:00.123456Z", "2024-03-01 10:30:00"},
		{"2024-03-01T10:30:00Z", "2024-03-01 10:30:00"},
		{"2024-03-01T10:30:00", "2024-03-01 10:30:00"},
		{"2024-03-01 10:30:00", "2024-03-01 10:30:00"},
		{"2024-03-01", "2024-03-01 00:00:00"},
	}
	for _, tc := range cases {
		ts := tc.in
		if got := renderTimestamp(&ts, "N/A"); got != tc.want {
			t.Errorf("renderTimestamp(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if got := renderTimestamp(nil, "N/A"); got != "N/A" {
		t.Errorf("renderTimestamp(nil) = %q, want N/A", got)
	}
	empty := ""
	if got := renderTimestamp(&empty, ""); got != "" {
		t.Errorf("renderTimestamp(\"\") = %q, want empty", got)
	}
}

func TestBundleIndicatorsFiltersNonIndicators(t *testing.T) {
	obj, err := Decode(json.RawMessage(`{
		"id": "bundle--b1",
		"type": "bundle",
		"objects": [
			{"id": "indicator--a", "type": "indicator", "pattern": "[url:value = 'http://a']"},
			{"id": "malware--m", "type": "malware", "name": "loader"},
			{"id": "indicator--b", "type": "indicator", "pattern": "[url:value = 'http://b']"}
		]
	}`))
	require.NoError(t, err)
	require.True(t, obj.IsBundle())

	found, skipped := obj.Indicators()
	assert.Empty(t, skipped)
	require.Len(t, found, 2)
	assert.Equal(t, "indicator--a", found[0].ID)
	assert.Equal(t, "indicator--b", found[1].ID)
}

func TestIndicatorsOnPlainObjects(t *testing.T) {
	ind, err := Decode(json.RawMessage(`{"id": "indicator--solo", "type": "indicator"}`))
	require.NoError(t, err)
	found, skipped := ind.Indicators()
	assert.Empty(t, skipped)
	require.Len(t, found, 1)
	assert.Equal(t, "indicator--solo", found[0].ID)

	other, err := Decode(json.RawMessage(`{"id": "malware--x", "type": "malware"}`))
	require.NoError(t, err)
	found, skipped = other.Indicators()
	assert.Empty(t, skipped)
	assert.Empty(t, found)
}

func TestNormalizeDetailCarriesPrettyRaw(t *testing.T) {
	obj, err := Decode(json.RawMessage(`{"id":"indicator--d","type":"indicator","pattern":"[x]"}`))
	require.NoError(t, err)

	ind := NormalizeDetail(obj, "feed")
	require.NotEmpty(t, ind.Raw)
	assert.True(t, strings.Contains(ind.Raw, "\n"), "raw should be indented")
	assert.Contains(t, ind.Raw, `"indicator--d"`)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode(json.RawMessage(`{"id": `))
	assert.Error(t, err)
}
