package session

import (
	"context"
	"testing"
	"time"

	"github.com/npezzotti/earth-board/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCursorBroadcaster(t *testing.T, bus *fakeBus, clock *fakeClock) *CursorBroadcaster {
	cb := NewCursorBroadcaster(bus, testutil.TestLogger(t))
	cb.now = clock.Now
	next := 0
	cb.pick = func(n int) int {
		next = (next + 1) % n
		return next
	}
	return cb
}

func cursorAt(sessionId string, x, y float64, sent time.Time) cursorPayload {
	return cursorPayload{X: x, Y: y, SessionId: sessionId, Timestamp: sent.UnixMilli()}
}

func TestCursorView_broadcast(t *testing.T) {
	ctx := context.Background()
	bus := newFakeBus()
	clock := newFakeClock()
	cb := newTestCursorBroadcaster(t, bus, clock)

	alice, err := cb.Subscribe(ctx, "c1", "alice")
	require.NoError(t, err)
	defer alice.Close(ctx)
	bob, err := cb.Subscribe(ctx, "c1", "bob")
	require.NoError(t, err)
	defer bob.Close(ctx)

	require.NoError(t, alice.Broadcast(ctx, 10, 20))

	assert.Empty(t, alice.Cursors(), "expected own cursor to be ignored")
	cursors := bob.Cursors()
	if assert.Len(t, cursors, 1) {
		assert.Equal(t, "alice", cursors[0].SessionId)
		assert.Equal(t, 10.0, cursors[0].X)
		assert.Equal(t, 20.0, cursors[0].Y)
		assert.Contains(t, CursorEmojis, cursors[0].Emoji)
	}
}

func TestCursorView_receive(t *testing.T) {
	ctx := context.Background()
	bus := newFakeBus()
	clock := newFakeClock()
	cb := newTestCursorBroadcaster(t, bus, clock)

	v, err := cb.Subscribe(ctx, "c1", "me")
	require.NoError(t, err)
	defer v.Close(ctx)

	t0 := clock.Now()
	bus.deliver("cursors:c1", "cursor", cursorAt("a", 1, 1, t0))
	emoji := v.Cursors()[0].Emoji

	t.Run("glyph is stable across updates", func(t *testing.T) {
		clock.Advance(time.Second)
		bus.deliver("cursors:c1", "cursor", cursorAt("a", 2, 2, clock.Now()))

		cursors := v.Cursors()
		if assert.Len(t, cursors, 1) {
			assert.Equal(t, emoji, cursors[0].Emoji)
			assert.Equal(t, 2.0, cursors[0].X)
		}
	})

	t.Run("older message is dropped", func(t *testing.T) {
		bus.deliver("cursors:c1", "cursor", cursorAt("a", 9, 9, t0))

		assert.Equal(t, 2.0, v.Cursors()[0].X)
	})

	t.Run("other events and own session are ignored", func(t *testing.T) {
		bus.deliver("cursors:c1", "wave", cursorAt("b", 1, 1, clock.Now()))
		bus.deliver("cursors:c1", "cursor", cursorAt("me", 1, 1, clock.Now()))
		bus.deliver("cursors:c1", "cursor", "garbage")

		assert.Len(t, v.Cursors(), 1)
	})

	t.Run("new session gets its own entry", func(t *testing.T) {
		bus.deliver("cursors:c1", "cursor", cursorAt("b", 5, 5, clock.Now()))

		cursors := v.Cursors()
		if assert.Len(t, cursors, 2) {
			assert.Equal(t, "a", cursors[0].SessionId)
			assert.Equal(t, "b", cursors[1].SessionId)
		}
	})
}

func TestCursorView_eviction(t *testing.T) {
	ctx := context.Background()
	bus := newFakeBus()
	clock := newFakeClock()
	cb := newTestCursorBroadcaster(t, bus, clock)

	v, err := cb.Subscribe(ctx, "c1", "me")
	require.NoError(t, err)
	defer v.Close(ctx)

	bus.deliver("cursors:c1", "cursor", cursorAt("stale", 1, 1, clock.Now()))
	clock.Advance(3 * time.Second)
	bus.deliver("cursors:c1", "cursor", cursorAt("fresh", 1, 1, clock.Now()))
	clock.Advance(3 * time.Second)

	v.cursors.Sweep()

	cursors := v.Cursors()
	if assert.Len(t, cursors, 1, "expected only the recently updated cursor to remain") {
		assert.Equal(t, "fresh", cursors[0].SessionId)
	}
}

func TestCursorView_Close(t *testing.T) {
	ctx := context.Background()
	bus := newFakeBus()
	cb := newTestCursorBroadcaster(t, bus, newFakeClock())

	v, err := cb.Subscribe(ctx, "c1", "me")
	require.NoError(t, err)

	require.NoError(t, v.Close(ctx))
	assert.Empty(t, bus.members("cursors:c1"), "expected close to leave the topic")
	assert.Empty(t, v.Cursors())
}
