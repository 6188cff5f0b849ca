package bus

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBusWithEmptyURLReturnsNullBus(t *testing.T) {
	b := NewBus("", nil)
	_, ok := b.(*NullBus)
	assert.True(t, ok)
}

func TestNewBusFallsBackWhenRedisUnreachable(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	// Nothing listens on this port; construction must degrade, not fail.
	b := NewBus("redis://127.0.0.1:1/0", logger)
	_, ok := b.(*NullBus)
	assert.True(t, ok)
	assert.Contains(t, buf.String(), "falling back")
}

func TestNullBusPublishRefresh(t *testing.T) {
	var buf bytes.Buffer
	nb := NewNullBus(log.New(&buf, "", 0))
	defer nb.Close()

	require.NoError(t, nb.HealthCheck(context.Background()))
	require.NoError(t, nb.PublishRefresh(context.Background(), RefreshMessage{
		RunID:          "run-1",
		IndicatorCount: 12,
		Errors:         []string{"feed A: boom"},
	}))
	assert.Contains(t, buf.String(), "run-1")
	assert.Contains(t, buf.String(), "12 indicators")
}
