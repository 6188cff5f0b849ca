package refresh

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxiiwatch/internal/bus"
	"taxiiwatch/internal/feed"
	"taxiiwatch/internal/stix"
	"taxiiwatch/internal/store"
)

func newTestStores(t *testing.T) (*feed.Store, *feed.IndicatorStore) {
	t.Helper()
	dir := t.TempDir()
	return feed.NewStore(filepath.Join(dir, "feeds.json"), nil),
		feed.NewIndicatorStore(filepath.Join(dir, "indicators.json"), nil)
}

// stubFetcher serves canned results keyed by feed name.
func stubFetcher(results map[string][]stix.Indicator, failures map[string]error) Fetcher {
	return FetcherFunc(func(ctx context.Context, f feed.Feed) ([]stix.Indicator, error) {
		if err, ok := failures[f.Name]; ok {
			return results[f.Name], err
		}
		return results[f.Name], nil
	})
}

func TestRefreshAllKeepsHealthyFeedsWhenOneFails(t *testing.T) {
	feeds, indicators := newTestStores(t)
	require.NoError(t, feeds.Add(feed.New("A", "https://a.example/api1", "Col", "", "")))
	require.NoError(t, feeds.Add(feed.New("B", "https://b.example/api1", "Col", "", "")))

	fetcher := stubFetcher(
		map[string][]stix.Indicator{
			"A": {
				{ID: "indicator--1", Type: "indicator"},
				{ID: "indicator--2", Type: "indicator"},
				{ID: "indicator--3", Type: "indicator"},
			},
		},
		map[string]error{"B": errors.New("connection refused")},
	)

	orch := NewOrchestrator(feeds, indicators, nil, WithFetcher(fetcher))
	summary, err := orch.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "B", summary.Errors[0].FeedName)
	assert.Contains(t, summary.Errors[0].Message, "connection refused")
	assert.NotEmpty(t, summary.RunID)

	stored, err := indicators.List()
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for _, ind := range stored {
		assert.Equal(t, "A", ind.FeedSource)
	}
}

func TestRefreshAllKeepsPartialResultsFromFailedFeed(t *testing.T) {
	feeds, indicators := newTestStores(t)
	require.NoError(t, feeds.Add(feed.New("flaky", "https://f.example/api1", "Col", "", "")))

	// The fetcher returns two indicators alongside the error, the way a
	// mid-pagination failure does.
	fetcher := FetcherFunc(func(ctx context.Context, f feed.Feed) ([]stix.Indicator, error) {
		return []stix.Indicator{
			{ID: "indicator--1", Type: "indicator"},
			{ID: "indicator--2", Type: "indicator"},
		}, errors.New("fetch page 2: status 500")
	})

	orch := NewOrchestrator(feeds, indicators, nil, WithFetcher(fetcher))
	summary, err := orch.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Len(t, summary.Errors, 1)

	stored, err := indicators.List()
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRefreshAllReplacesPreviousRound(t *testing.T) {
	feeds, indicators := newTestStores(t)
	require.NoError(t, feeds.Add(feed.New("A", "https://a.example/api1", "Col", "", "")))

	var round int
	fetcher := FetcherFunc(func(ctx context.Context, f feed.Feed) ([]stix.Indicator, error) {
		round++
		if round == 1 {
			return []stix.Indicator{
				{ID: "indicator--old-1", Type: "indicator"},
				{ID: "indicator--old-2", Type: "indicator"},
			}, nil
		}
		return []stix.Indicator{{ID: "indicator--new", Type: "indicator"}}, nil
	})

	orch := NewOrchestrator(feeds, indicators, nil, WithFetcher(fetcher))

	_, err := orch.RefreshAll(context.Background())
	require.NoError(t, err)
	_, err = orch.RefreshAll(context.Background())
	require.NoError(t, err)

	stored, err := indicators.List()
	require.NoError(t, err)
	require.Len(t, stored, 1, "store reflects exactly the last round")
	assert.Equal(t, "indicator--new", stored[0].ID)
}

func TestRefreshAllWithNoFeedsEmptiesStore(t *testing.T) {
	feeds, indicators := newTestStores(t)
	require.NoError(t, indicators.Replace([]stix.Indicator{{ID: "indicator--stale"}}))

	orch := NewOrchestrator(feeds, indicators, nil, WithFetcher(stubFetcher(nil, nil)))
	summary, err := orch.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)

	stored, err := indicators.List()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRefreshAllPreservesFeedOrder(t *testing.T) {
	feeds, indicators := newTestStores(t)
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("feed-%d", i)
		require.NoError(t, feeds.Add(feed.New(name, "https://t.example/api1", "Col", "", "")))
	}

	fetcher := FetcherFunc(func(ctx context.Context, f feed.Feed) ([]stix.Indicator, error) {
		return []stix.Indicator{{ID: "indicator--" + f.Name, Type: "indicator"}}, nil
	})

	orch := NewOrchestrator(feeds, indicators, nil, WithFetcher(fetcher))
	_, err := orch.RefreshAll(context.Background())
	require.NoError(t, err)

	stored, err := indicators.List()
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "indicator--feed-0", stored[0].ID)
	assert.Equal(t, "indicator--feed-1", stored[1].ID)
	assert.Equal(t, "indicator--feed-2", stored[2].ID)
}

func TestRefreshAllRecordsHistory(t *testing.T) {
	feeds, indicators := newTestStores(t)
	require.NoError(t, feeds.Add(feed.New("A", "https://a.example/api1", "Col", "", "")))
	require.NoError(t, feeds.Add(feed.New("B", "https://b.example/api1", "Col", "", "")))

	history, err := store.NewStore(":memory:")
	require.NoError(t, err)
	defer history.Close()

	fetcher := stubFetcher(
		map[string][]stix.Indicator{"A": {{ID: "indicator--1", Type: "indicator"}}},
		map[string]error{"B": errors.New("boom")},
	)

	orch := NewOrchestrator(feeds, indicators, nil, WithFetcher(fetcher), WithHistory(history))
	summary, err := orch.RefreshAll(context.Background())
	require.NoError(t, err)

	runs, err := history.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].ID)
	assert.Equal(t, 2, runs[0].FeedCount)
	assert.Equal(t, 1, runs[0].IndicatorCount)
	assert.Equal(t, 1, runs[0].ErrorCount)
	require.Len(t, runs[0].Errors, 1)
	assert.Equal(t, "B", runs[0].Errors[0].FeedName)
}

// recordingBus captures published refresh messages.
type recordingBus struct {
	mu       sync.Mutex
	messages []bus.RefreshMessage
}

func (b *recordingBus) PublishRefresh(ctx context.Context, msg bus.RefreshMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

func (b *recordingBus) HealthCheck(ctx context.Context) error { return nil }
func (b *recordingBus) Close() error                          { return nil }

func TestRefreshAllPublishesToBus(t *testing.T) {
	feeds, indicators := newTestStores(t)
	require.NoError(t, feeds.Add(feed.New("A", "https://a.example/api1", "Col", "", "")))

	eventBus := &recordingBus{}
	fetcher := stubFetcher(map[string][]stix.Indicator{
		"A": {{ID: "indicator--1", Type: "indicator"}},
	}, nil)

	orch := NewOrchestrator(feeds, indicators, nil, WithFetcher(fetcher), WithBus(eventBus))
	summary, err := orch.RefreshAll(context.Background())
	require.NoError(t, err)

	require.Len(t, eventBus.messages, 1)
	assert.Equal(t, summary.RunID, eventBus.messages[0].RunID)
	assert.Equal(t, 1, eventBus.messages[0].IndicatorCount)
	assert.Equal(t, 1, eventBus.messages[0].FeedCount)
}
