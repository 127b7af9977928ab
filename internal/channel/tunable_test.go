package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTunableChannelSendReceive(t *testing.T) {
	ch := NewTunableChannel[int](DefaultTunableConfig())
	defer ch.Close()

	require.NoError(t, ch.Send(context.Background(), 42))
	v, err := ch.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestTunableChannelTrySendFullBuffer(t *testing.T) {
	cfg := DefaultTunableConfig()
	cfg.InitialSize = 1
	ch := NewTunableChannel[int](cfg)
	defer ch.Close()

	assert.True(t, ch.TrySend(1))
	assert.False(t, ch.TrySend(2)) // buffer full, non-blocking send fails

	v, ok := ch.TryReceive()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = ch.TryReceive()
	assert.False(t, ok)
}

func TestTunableChannelReceiveContextCancel(t *testing.T) {
	ch := NewTunableChannel[int](DefaultTunableConfig())
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := ch.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTunableChannelGrowsUnderSustainedBlocking(t *testing.T) {
	cfg := DefaultTunableConfig()
	cfg.InitialSize = 2
	cfg.MinSize = 2
	cfg.MaxSize = 16
	cfg.SampleWindow = 0 // tune on every call for the test
	ch := NewTunableChannel[int](cfg)
	defer ch.Close()

	assert.Equal(t, 2, ch.Cap())

	ch.TrySend(1)
	ch.TrySend(2)
	ch.TrySend(3) // blocked: buffer full

	ch.Tune()
	assert.Greater(t, ch.Cap(), 2)
}

func TestTunableChannelStats(t *testing.T) {
	ch := NewTunableChannel[int](DefaultTunableConfig())
	defer ch.Close()

	ch.TrySend(1)
	ch.TryReceive()

	stats := ch.Stats()
	assert.Equal(t, int64(1), stats.Sends)
	assert.Equal(t, int64(1), stats.Receives)
}
