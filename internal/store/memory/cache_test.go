package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

func TestLockManager_Exclusive(t *testing.T) {
	ctx := context.Background()
	m := NewLockManager()

	unlock, err := m.Acquire(ctx, "position:1:BTC", time.Minute)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "position:1:BTC", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	other, err := m.Acquire(ctx, "position:1:ETH", time.Minute)
	require.NoError(t, err)
	other()

	unlock()
	again, err := m.Acquire(ctx, "position:1:BTC", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockManager_ExpiredLeaseCanBeTaken(t *testing.T) {
	ctx := context.Background()
	m := NewLockManager()
	now := time.Now()
	m.now = func() time.Time { return now }

	stale, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	// The stale holder must not release the new lease.
	stale()
	_, err = m.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	fresh()
}

func TestSignalBus_StreamRead(t *testing.T) {
	ctx := context.Background()
	b := NewSignalBus()
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, b.StreamAppend(ctx, "s", []byte(p)))
	}
	msgs, err := b.StreamRead(ctx, "s", "0", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	msgs, err = b.StreamRead(ctx, "s", msgs[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "c", string(msgs[0].Payload))
}

func TestSignalBus_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewSignalBus()
	ch, err := b.Subscribe(ctx, "positions")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "positions", []byte("x")))
	require.NoError(t, b.Publish(ctx, "other", []byte("y")))
	assert.Equal(t, "x", string(<-ch))

	cancel()
	_, open := <-ch
	assert.False(t, open)
}
