package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxiiwatch/internal/stix"
)

func tempStorePath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

func TestStoreMissingFileReadsEmpty(t *testing.T) {
	store := NewStore(tempStorePath(t, "feeds.json"), nil)
	feeds, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, feeds)
}

func TestStoreUndecodableFileDegradesToEmpty(t *testing.T) {
	path := tempStorePath(t, "feeds.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{not json"), 0o644))

	store := NewStore(path, nil)
	feeds, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, feeds)

	// The store stays writable after degrading.
	require.NoError(t, store.Add(New("Recovered", "https://t.example/api1", "Col", "", "")))
	feeds, err = store.List()
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
}

func TestStoreAddPreservesOrder(t *testing.T) {
	store := NewStore(tempStorePath(t, "feeds.json"), nil)

	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, store.Add(New(name, "https://t.example/api1", "Col", "", "")))
	}

	feeds, err := store.List()
	require.NoError(t, err)
	require.Len(t, feeds, 3)
	assert.Equal(t, "first", feeds[0].Name)
	assert.Equal(t, "second", feeds[1].Name)
	assert.Equal(t, "third", feeds[2].Name)
}

func TestStoreDeleteAtPreservesRemainingOrder(t *testing.T) {
	store := NewStore(tempStorePath(t, "feeds.json"), nil)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, store.Add(New(name, "https://t.example/api1", "Col", "", "")))
	}

	require.NoError(t, store.DeleteAt(1))

	feeds, err := store.List()
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "a", feeds[0].Name)
	assert.Equal(t, "c", feeds[1].Name)
}

func TestStoreDeleteAtOutOfRangeIsNoop(t *testing.T) {
	store := NewStore(tempStorePath(t, "feeds.json"), nil)
	require.NoError(t, store.Add(New("only", "https://t.example/api1", "Col", "", "")))

	require.NoError(t, store.DeleteAt(5))
	require.NoError(t, store.DeleteAt(-1))

	feeds, err := store.List()
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
}

func TestStoreDeleteByID(t *testing.T) {
	store := NewStore(tempStorePath(t, "feeds.json"), nil)
	target := New("target", "https://t.example/api1", "Col", "", "")
	require.NoError(t, store.Add(New("keep", "https://t.example/api1", "Col", "", "")))
	require.NoError(t, store.Add(target))

	found, err := store.DeleteByID(target.ID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.DeleteByID("no-such-id")
	require.NoError(t, err)
	assert.False(t, found)

	feeds, err := store.List()
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "keep", feeds[0].Name)
}

func TestNewFeedDefaults(t *testing.T) {
	f := New("", "https://t.example/api1", "Col", "", "")
	assert.Equal(t, "Unnamed Feed", f.Name)
	assert.NotEmpty(t, f.ID)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, f.Added)

	other := New("", "https://t.example/api1", "Col", "", "")
	assert.NotEqual(t, f.ID, other.ID)
}

func TestIndicatorStoreReplaceIsIdempotent(t *testing.T) {
	store := NewIndicatorStore(tempStorePath(t, "indicators.json"), nil)

	batch := []stix.Indicator{
		{ID: "indicator--1", Type: "indicator", Value: "[a]", Source: "Feed"},
		{ID: "indicator--2", Type: "indicator", Value: "[b]", Source: "Feed"},
	}
	require.NoError(t, store.Replace(batch))
	require.NoError(t, store.Replace(batch))

	got, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, batch, got)
}

func TestIndicatorStoreReplaceOverwritesFully(t *testing.T) {
	store := NewIndicatorStore(tempStorePath(t, "indicators.json"), nil)

	require.NoError(t, store.Replace([]stix.Indicator{
		{ID: "indicator--old", Type: "indicator"},
		{ID: "indicator--stale", Type: "indicator"},
	}))
	require.NoError(t, store.Replace([]stix.Indicator{
		{ID: "indicator--new", Type: "indicator"},
	}))

	got, err := store.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "indicator--new", got[0].ID)
}

func TestIndicatorStoreReplaceNilWritesEmptyList(t *testing.T) {
	path := tempStorePath(t, "indicators.json")
	store := NewIndicatorStore(path, nil)

	require.NoError(t, store.Replace(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data), "empty refresh persists a list, not null")

	got, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, got)
}
