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
)

const (
	CursorSweepInterval = time.Second
	CursorStaleAfter    = 5 * time.Second

	cursorEvent = "cursor"
)

var CursorEmojis = []string{"🐑", "🦋", "🌿", "✨", "🌙", "⭐", "🌸", "🦊", "🐝", "🌊", "🔥", "🌈"}

type LiveCursor struct {
	SessionId string
	X, Y      float64
	Emoji     string
	// SentAt is the sender's clock; LastUpdate is ours.
	SentAt     time.Time
	LastUpdate time.Time
}

type cursorPayload struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	SessionId string  `json:"sessionId"`
	Timestamp int64   `json:"timestamp"`
}

type CursorBroadcaster struct {
	transport realtime.Transport
	log       *log.Logger
	now       func() time.Time
	pick      func(n int) int
}

func NewCursorBroadcaster(transport realtime.Transport, logger *log.Logger) *CursorBroadcaster {
	return &CursorBroadcaster{
		transport: transport,
		log:       logger,
		now:       time.Now,
		pick:      rand.IntN,
	}
}

// CursorView is the local aggregate of other sessions' cursors on one
// canvas.
type CursorView struct {
	sessionId string
	sub       realtime.Subscription
	cursors   *ttlmap.Registry[string, LiveCursor]
	log       *log.Logger
	now       func() time.Time
	pick      func(n int) int
}

func (cb *CursorBroadcaster) Subscribe(ctx context.Context, canvasId, sessionId string) (*CursorView, error) {
	v := &CursorView{
		sessionId: sessionId,
		cursors:   ttlmap.NewWithClock[string, LiveCursor](cb.now),
		log:       cb.log,
		now:       cb.now,
		pick:      cb.pick,
	}

	sub, err := cb.transport.Join(ctx, realtime.Topic(realtime.KindCursors, canvasId),
		realtime.JoinOptions{Self: false},
		realtime.Handlers{OnBroadcast: v.receive},
	)
	if err != nil {
		return nil, fmt.Errorf("join cursors: %w", err)
	}
	v.sub = sub
	v.cursors.StartSweeper(CursorSweepInterval)

	return v, nil
}

// Broadcast sends our cursor position. Delivery is best effort.
func (v *CursorView) Broadcast(ctx context.Context, x, y float64) error {
	return v.sub.Send(ctx, cursorEvent, cursorPayload{
		X:         x,
		Y:         y,
		SessionId: v.sessionId,
		Timestamp: v.now().UnixMilli(),
	})
}

func (v *CursorView) receive(event string, raw json.RawMessage) {
	if event != cursorEvent {
		return
	}

	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		v.log.Println("invalid cursor payload:", err)
		return
	}
	if p.SessionId == "" || p.SessionId == v.sessionId {
		return
	}

	sentAt := time.UnixMilli(p.Timestamp)
	now := v.now()
	v.cursors.Update(p.SessionId, func(cur LiveCursor, ok bool) (LiveCursor, bool) {
		if !ok {
			cur = LiveCursor{
				SessionId: p.SessionId,
				Emoji:     CursorEmojis[v.pick(len(CursorEmojis))],
			}
		} else if sentAt.Before(cur.SentAt) {
			return cur, false
		}

		cur.X, cur.Y = p.X, p.Y
		cur.SentAt = sentAt
		cur.LastUpdate = now
		return cur, true
	}, CursorStaleAfter)
}

// Cursors returns the live cursors ordered by session id.
func (v *CursorView) Cursors() []LiveCursor {
	cursors := v.cursors.Values()
	sort.Slice(cursors, func(i, j int) bool {
		return cursors[i].SessionId < cursors[j].SessionId
	})
	return cursors
}

// Close stops the eviction sweep and leaves the cursor topic.
func (v *CursorView) Close(ctx context.Context) error {
	v.cursors.Close()

	if err := v.sub.Leave(ctx); err != nil {
		v.log.Printf("leave %q: %v", v.sub.Topic(), err)
		return err
	}
	return nil
}
