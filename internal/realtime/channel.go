package realtime

import (
	"encoding/json"
	"log"
	"sort"
	"time"
)

const idleChannelTimeout = time.Second * 5

type exitReq struct {
	// shutdown forces the exit. Otherwise the channel only exits when idle.
	shutdown bool
	done     chan bool
}

type member struct {
	self    bool
	key     string
	meta    json.RawMessage
	tracked bool
}

// Channel is a loaded topic. Its goroutine owns membership and presence
// state; everything else talks to it through its channels.
type Channel struct {
	topic         string
	kind          Kind
	canvasId      string
	hub           *Hub
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	changeChan    chan *ServerMessage
	members       map[*Client]*member
	// presence maps a presence key to the connections tracking it.
	presence map[string]map[*Client]struct{}
	seq      int64
	log      *log.Logger
	// killTimer unloads the channel once it has been idle for a while.
	killTimer *time.Timer
	exit      chan exitReq
}

func newChannel(hub *Hub, topic string, kind Kind, canvasId string) *Channel {
	return &Channel{
		topic:         topic,
		kind:          kind,
		canvasId:      canvasId,
		hub:           hub,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		changeChan:    make(chan *ServerMessage, 256),
		members:       make(map[*Client]*member),
		presence:      make(map[string]map[*Client]struct{}),
		log:           hub.log,
		exit:          make(chan exitReq),
	}
}

func (ch *Channel) start() {
	ch.killTimer = time.NewTimer(idleChannelTimeout)
	ch.killTimer.Stop()

	for {
		select {
		case join := <-ch.joinChan:
			ch.handleJoin(join)
		case leave := <-ch.leaveChan:
			ch.handleLeave(leave)
		case msg := <-ch.clientMsgChan:
			if msg.Broadcast != nil {
				ch.handleBroadcast(msg)
			} else if msg.Track != nil {
				ch.handleTrack(msg)
			}
		case change := <-ch.changeChan:
			ch.broadcast(change)
		case <-ch.killTimer.C:
			ch.handleTimeout()
		case e := <-ch.exit:
			if ch.handleExit(e) {
				return
			}
		}
	}
}

func (ch *Channel) handleTimeout() {
	if len(ch.members) > 0 {
		return
	}

	select {
	case ch.hub.unloadChan <- ch:
	default:
		ch.log.Printf("unload request for %q failed, retrying later", ch.topic)
		ch.killTimer.Reset(idleChannelTimeout)
	}
}

// handleExit reports whether the channel stopped. An idle unload is
// refused when a join raced the timeout.
func (ch *Channel) handleExit(e exitReq) bool {
	if !e.shutdown && (len(ch.members) > 0 || len(ch.joinChan) > 0) {
		e.done <- false
		return false
	}

	ch.killTimer.Stop()
	for c := range ch.members {
		ch.removeMember(c)
	}

	e.done <- true
	return true
}

func (ch *Channel) handleJoin(join *ClientMessage) {
	ch.killTimer.Stop()

	c := join.client
	m, ok := ch.members[c]
	if !ok {
		m = &member{}
		ch.members[c] = m
		c.addChannel(ch)

		// The connection may have gone while the join was queued. Checked
		// after addChannel so either this check or the client's own leave
		// catches it.
		if c.stopped() {
			ch.removeMember(c)
			ch.log.Printf("session %q disconnected before joining %q", c.sessionId, ch.topic)
			if len(ch.members) == 0 {
				ch.killTimer.Reset(idleChannelTimeout)
			}
			return
		}
		ch.log.Printf("session %q joined %q", c.sessionId, ch.topic)
	}
	m.self = join.Join.Self
	if join.Join.PresenceKey != "" && !m.tracked {
		m.key = join.Join.PresenceKey
	}

	c.reply(NoErrOK(join.Id, map[string]any{"topic": ch.topic}))

	// Joiners see current membership without waiting for the next change.
	if ch.kind == KindCanvas {
		c.queueMessage(ch.presenceSnapshot(nil, nil))
	}
}

func (ch *Channel) handleLeave(leave *ClientMessage) {
	c := leave.client
	if _, ok := ch.members[c]; !ok {
		c.reply(ErrNotJoined(leave.Id))
		return
	}

	ch.removeMember(c)
	c.reply(NoErrOK(leave.Id, nil))

	if len(ch.members) == 0 {
		ch.log.Printf("no members in %q, starting kill timer", ch.topic)
		ch.killTimer.Reset(idleChannelTimeout)
	}
}

func (ch *Channel) handleTrack(msg *ClientMessage) {
	c := msg.client
	m, ok := ch.members[c]
	if !ok {
		c.reply(ErrNotJoined(msg.Id))
		return
	}
	if m.key == "" {
		c.reply(ErrPresenceKeyRequired(msg.Id))
		return
	}

	m.meta = msg.Track.Meta
	m.tracked = true

	clients, present := ch.presence[m.key]
	if !present {
		clients = make(map[*Client]struct{})
		ch.presence[m.key] = clients
		ch.hub.stats.Incr(metricPresenceMembers)
	}
	clients[c] = struct{}{}

	c.reply(NoErrOK(msg.Id, nil))

	if !present {
		ch.broadcast(ch.presenceSnapshot([]string{m.key}, nil))
	} else {
		// Re-tracking a present key changes nothing for other members.
		c.queueMessage(ch.presenceSnapshot(nil, nil))
	}
}

func (ch *Channel) handleBroadcast(msg *ClientMessage) {
	c := msg.client
	m, ok := ch.members[c]
	if !ok {
		c.reply(ErrNotJoined(msg.Id))
		return
	}
	if ch.kind == KindObjects {
		c.reply(ErrReadOnlyTopic(msg.Id))
		return
	}

	out := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: msg.Timestamp},
		Broadcast: &Broadcast{
			Topic:   ch.topic,
			Event:   msg.Broadcast.Event,
			Payload: msg.Broadcast.Payload,
		},
	}
	if !m.self {
		out.SkipClient = c
	}

	ch.broadcast(out)
	ch.hub.stats.Incr(metricBroadcasts)
	c.reply(NoErrAccepted(msg.Id))
}

// removeMember drops c and its presence entry. A presence key leaves only
// when its last connection goes.
func (ch *Channel) removeMember(c *Client) {
	m, ok := ch.members[c]
	if !ok {
		return
	}

	delete(ch.members, c)
	c.delChannel(ch.topic)

	if !m.tracked {
		return
	}

	clients := ch.presence[m.key]
	delete(clients, c)
	if len(clients) > 0 {
		return
	}

	delete(ch.presence, m.key)
	ch.hub.stats.Decr(metricPresenceMembers)
	if len(ch.members) > 0 {
		ch.broadcast(ch.presenceSnapshot(nil, []string{m.key}))
	}
}

func (ch *Channel) presenceSnapshot(joins, leaves []string) *ServerMessage {
	ch.seq++

	state := make(map[string][]json.RawMessage, len(ch.presence))
	for key, clients := range ch.presence {
		metas := make([]json.RawMessage, 0, len(clients))
		for c := range clients {
			metas = append(metas, ch.members[c].meta)
		}
		state[key] = metas
	}

	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Presence: &Presence{
			Topic:  ch.topic,
			Seq:    ch.seq,
			State:  state,
			Joins:  joins,
			Leaves: leaves,
		},
	}
}

func (ch *Channel) presenceKeys() []string {
	keys := make([]string, 0, len(ch.presence))
	for key := range ch.presence {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (ch *Channel) broadcast(msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	for c := range ch.members {
		if c == msg.SkipClient {
			continue
		}

		c.queueMessage(msg)
	}
}
