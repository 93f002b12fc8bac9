package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/npezzotti/earth-board/internal/realtime"
	"github.com/npezzotti/earth-board/internal/ttlmap"
	"github.com/teris-io/shortid"
)

const (
	ReactionLifetime = 3 * time.Second

	reactionEvent = "reaction"
)

var ReactionEmojis = []string{"✨", "❤️", "🔥", "👏", "🌟", "💫"}

type Reaction struct {
	Id    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Emoji string  `json:"emoji"`
	// Timestamp is in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

type ReactionBroadcaster struct {
	transport realtime.Transport
	log       *log.Logger
	now       func() time.Time
	pick      func(n int) int
	newId     func() (string, error)
}

func NewReactionBroadcaster(transport realtime.Transport, logger *log.Logger) *ReactionBroadcaster {
	return &ReactionBroadcaster{
		transport: transport,
		log:       logger,
		now:       time.Now,
		pick:      rand.IntN,
		newId:     shortid.Generate,
	}
}

// ReactionView holds the reactions currently visible on one canvas. Each
// one disappears ReactionLifetime after it arrives.
type ReactionView struct {
	sub       realtime.Subscription
	reactions *ttlmap.Registry[string, Reaction]
	lifetime  time.Duration
	rb        *ReactionBroadcaster
}

func (rb *ReactionBroadcaster) Subscribe(ctx context.Context, canvasId string) (*ReactionView, error) {
	v := &ReactionView{
		reactions: ttlmap.New[string, Reaction](),
		lifetime:  ReactionLifetime,
		rb:        rb,
	}

	// Our own reactions come back through the topic.
	sub, err := rb.transport.Join(ctx, realtime.Topic(realtime.KindReactions, canvasId),
		realtime.JoinOptions{Self: true},
		realtime.Handlers{OnBroadcast: v.receive},
	)
	if err != nil {
		return nil, fmt.Errorf("join reactions: %w", err)
	}
	v.sub = sub

	return v, nil
}

// Add broadcasts a reaction at (x, y) with a random emoji.
func (v *ReactionView) Add(ctx context.Context, x, y float64) (Reaction, error) {
	id, err := v.rb.newId()
	if err != nil {
		return Reaction{}, fmt.Errorf("generate reaction id: %w", err)
	}

	r := Reaction{
		Id:        id,
		X:         x,
		Y:         y,
		Emoji:     ReactionEmojis[v.rb.pick(len(ReactionEmojis))],
		Timestamp: v.rb.now().UnixMilli(),
	}

	if err := v.sub.Send(ctx, reactionEvent, r); err != nil {
		return Reaction{}, err
	}
	return r, nil
}

func (v *ReactionView) receive(event string, raw json.RawMessage) {
	if event != reactionEvent {
		return
	}

	var r Reaction
	if err := json.Unmarshal(raw, &r); err != nil {
		v.rb.log.Println("invalid reaction payload:", err)
		return
	}
	if r.Id == "" {
		return
	}

	v.reactions.SetWithTimer(r.Id, r, v.lifetime)
}

// Reactions returns the visible reactions, oldest first.
func (v *ReactionView) Reactions() []Reaction {
	reactions := v.reactions.Values()
	sort.Slice(reactions, func(i, j int) bool {
		if reactions[i].Timestamp != reactions[j].Timestamp {
			return reactions[i].Timestamp < reactions[j].Timestamp
		}
		return reactions[i].Id < reactions[j].Id
	})
	return reactions
}

// Close cancels pending expiry timers and leaves the reaction topic.
func (v *ReactionView) Close(ctx context.Context) error {
	v.reactions.Close()

	if err := v.sub.Leave(ctx); err != nil {
		v.rb.log.Printf("leave %q: %v", v.sub.Topic(), err)
		return err
	}
	return nil
}
