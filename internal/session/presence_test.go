package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/npezzotti/earth-board/internal/realtime"
	"github.com/npezzotti/earth-board/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceTracker_Join(t *testing.T) {
	ctx := context.Background()
	bus := newFakeBus()
	pt := NewPresenceTracker(bus, testutil.TestLogger(t))

	a, err := pt.Join(ctx, "c1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.LiveCount())

	var counts []int
	a.OnChange(func(n int) { counts = append(counts, n) })

	b, err := pt.Join(ctx, "c1", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, a.LiveCount())
	assert.Equal(t, 2, b.LiveCount())

	t.Run("duplicate session does not change the count", func(t *testing.T) {
		dup, err := pt.Join(ctx, "c1", "b")
		require.NoError(t, err)
		assert.Equal(t, 2, a.LiveCount())

		require.NoError(t, dup.Close(ctx))
		assert.Equal(t, 2, a.LiveCount())
	})

	t.Run("leaving decrements once", func(t *testing.T) {
		require.NoError(t, b.Close(ctx))
		assert.Equal(t, 1, a.LiveCount())
		assert.Equal(t, []int{2, 1}, counts)
	})

	t.Run("other canvases are separate", func(t *testing.T) {
		other, err := pt.Join(ctx, "c2", "z")
		require.NoError(t, err)
		assert.Equal(t, 1, other.LiveCount())
		assert.Equal(t, 1, a.LiveCount())
	})
}

func TestPresence_apply(t *testing.T) {
	p := &Presence{log: testutil.TestLogger(t)}
	calls := 0
	p.OnChange(func(int) { calls++ })

	state := func(keys ...string) *realtime.Presence {
		snap := &realtime.Presence{State: map[string][]json.RawMessage{}}
		for _, k := range keys {
			snap.State[k] = nil
		}
		return snap
	}

	newer := state("a", "b", "c")
	newer.Seq = 5
	older := state("a")
	older.Seq = 3

	p.apply(newer)
	p.apply(older)
	assert.Equal(t, 3, p.LiveCount(), "expected an out of order snapshot to be ignored")

	same := state("a", "b", "c")
	same.Seq = 6
	p.apply(same)
	assert.Equal(t, 1, calls, "expected no callback when the count is unchanged")
}

func TestPresenceTracker_errors(t *testing.T) {
	ctx := context.Background()

	t.Run("join fails", func(t *testing.T) {
		bus := newFakeBus()
		bus.joinErr = errors.New("socket closed")

		_, err := NewPresenceTracker(bus, testutil.TestLogger(t)).Join(ctx, "c1", "a")
		assert.ErrorContains(t, err, "socket closed")
	})

	t.Run("track fails and leaves", func(t *testing.T) {
		bus := newFakeBus()
		bus.trackErr = errors.New("presence key required")

		_, err := NewPresenceTracker(bus, testutil.TestLogger(t)).Join(ctx, "c1", "a")
		assert.ErrorContains(t, err, "presence key required")
		assert.Empty(t, bus.members("canvas:c1"), "expected the failed join to be undone")
	})
}
