package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/earth-board/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionView_Add(t *testing.T) {
	ctx := context.Background()
	bus := newFakeBus()
	rb := NewReactionBroadcaster(bus, testutil.TestLogger(t))

	sender, err := rb.Subscribe(ctx, "c1")
	require.NoError(t, err)
	defer sender.Close(ctx)
	viewer, err := rb.Subscribe(ctx, "c1")
	require.NoError(t, err)
	defer viewer.Close(ctx)

	r, err := sender.Add(ctx, 3, 4)
	require.NoError(t, err)
	assert.NotEmpty(t, r.Id)
	assert.Contains(t, ReactionEmojis, r.Emoji)

	assert.Equal(t, []Reaction{r}, sender.Reactions(), "expected sender to see its own reaction")
	assert.Equal(t, []Reaction{r}, viewer.Reactions())

	second, err := sender.Add(ctx, 5, 6)
	require.NoError(t, err)
	assert.NotEqual(t, r.Id, second.Id, "expected unique reaction ids")
	assert.Len(t, viewer.Reactions(), 2)
}

func TestReactionView_expiry(t *testing.T) {
	ctx := context.Background()
	bus := newFakeBus()
	rb := NewReactionBroadcaster(bus, testutil.TestLogger(t))

	v, err := rb.Subscribe(ctx, "c1")
	require.NoError(t, err)
	defer v.Close(ctx)
	v.lifetime = 50 * time.Millisecond

	r, err := v.Add(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, v.Reactions(), 1, "expected reaction right after it was added")

	// Redelivery of the same id does not duplicate it.
	bus.deliver("reactions:c1", "reaction", r)
	assert.Len(t, v.Reactions(), 1)

	assert.Eventually(t, func() bool { return len(v.Reactions()) == 0 },
		time.Second, 5*time.Millisecond, "expected reaction to expire")
}

func TestReactionView_errors(t *testing.T) {
	ctx := context.Background()

	t.Run("id generation fails", func(t *testing.T) {
		rb := NewReactionBroadcaster(newFakeBus(), testutil.TestLogger(t))
		rb.newId = func() (string, error) { return "", errors.New("clock moved backwards") }

		v, err := rb.Subscribe(ctx, "c1")
		require.NoError(t, err)
		defer v.Close(ctx)

		_, err = v.Add(ctx, 1, 1)
		assert.ErrorContains(t, err, "clock moved backwards")
		assert.Empty(t, v.Reactions())
	})

	t.Run("invalid payloads are ignored", func(t *testing.T) {
		bus := newFakeBus()
		v, err := NewReactionBroadcaster(bus, testutil.TestLogger(t)).Subscribe(ctx, "c1")
		require.NoError(t, err)
		defer v.Close(ctx)

		bus.deliver("reactions:c1", "reaction", "not an object")
		bus.deliver("reactions:c1", "reaction", Reaction{X: 1})
		bus.deliver("reactions:c1", "cursor", Reaction{Id: "x"})

		assert.Empty(t, v.Reactions())
	})
}

func TestReactionView_Close(t *testing.T) {
	ctx := context.Background()
	bus := newFakeBus()

	v, err := NewReactionBroadcaster(bus, testutil.TestLogger(t)).Subscribe(ctx, "c1")
	require.NoError(t, err)
	_, err = v.Add(ctx, 1, 1)
	require.NoError(t, err)

	require.NoError(t, v.Close(ctx))
	assert.Empty(t, v.Reactions(), "expected close to drop pending reactions")
	assert.Empty(t, bus.members("reactions:c1"))
}
