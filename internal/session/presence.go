package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/earth-board/internal/realtime"
)

type presenceMeta struct {
	SessionId string `json:"session_id"`
	OnlineAt  string `json:"online_at"`
}

type PresenceTracker struct {
	transport realtime.Transport
	log       *log.Logger
	now       func() time.Time
}

func NewPresenceTracker(transport realtime.Transport, logger *log.Logger) *PresenceTracker {
	return &PresenceTracker{
		transport: transport,
		log:       logger,
		now:       time.Now,
	}
}

// Presence is a live view of the sessions connected to one canvas.
type Presence struct {
	sub      realtime.Subscription
	log      *log.Logger
	mu       sync.Mutex
	lastSeq  int64
	count    int
	onChange []func(int)
}

// Join registers sessionId in the presence set of canvasId for as long as
// the returned Presence stays open.
func (pt *PresenceTracker) Join(ctx context.Context, canvasId, sessionId string) (*Presence, error) {
	p := &Presence{log: pt.log}

	sub, err := pt.transport.Join(ctx, realtime.Topic(realtime.KindCanvas, canvasId),
		realtime.JoinOptions{PresenceKey: sessionId},
		realtime.Handlers{OnPresence: p.apply},
	)
	if err != nil {
		return nil, fmt.Errorf("join presence: %w", err)
	}
	p.sub = sub

	meta := presenceMeta{
		SessionId: sessionId,
		OnlineAt:  pt.now().UTC().Format(time.RFC3339),
	}
	if err := sub.Track(ctx, meta); err != nil {
		if lerr := sub.Leave(ctx); lerr != nil {
			pt.log.Printf("leave presence for %q: %v", canvasId, lerr)
		}
		return nil, fmt.Errorf("track presence: %w", err)
	}

	return p, nil
}

// apply takes a membership snapshot. Older snapshots are ignored so
// out-of-order delivery converges on the newest state.
func (p *Presence) apply(snap *realtime.Presence) {
	p.mu.Lock()
	if snap.Seq <= p.lastSeq {
		p.mu.Unlock()
		return
	}
	p.lastSeq = snap.Seq
	changed := p.count != len(snap.State)
	p.count = len(snap.State)
	count := p.count
	callbacks := append([]func(int){}, p.onChange...)
	p.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range callbacks {
		fn(count)
	}
}

// LiveCount is the number of distinct sessions in the latest snapshot.
func (p *Presence) LiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// OnChange registers fn to be called with the new count whenever it
// changes.
func (p *Presence) OnChange(fn func(int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

func (p *Presence) Close(ctx context.Context) error {
	p.mu.Lock()
	p.onChange = nil
	p.mu.Unlock()

	if err := p.sub.Leave(ctx); err != nil {
		p.log.Printf("leave %q: %v", p.sub.Topic(), err)
		return err
	}
	return nil
}
