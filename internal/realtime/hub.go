package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/earth-board/internal/database"
	"github.com/npezzotti/earth-board/internal/stats"
)

const (
	metricConnectedClients = "connected_clients"
	metricActiveChannels   = "active_channels"
	metricPresenceMembers  = "presence_members"
	metricBroadcasts       = "broadcasts_sent"
)

const lookupTimeout = 5 * time.Second

type stopReq struct {
	done chan struct{}
}

// Hub routes joins to topic channels, loading a channel on first join and
// unloading it once idle.
type Hub struct {
	log         *log.Logger
	db          database.BoardRepository
	stats       stats.StatsProvider
	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	joinChan    chan *ClientMessage
	unloadChan  chan *Channel
	changeChan  chan *ServerMessage
	channelsMap sync.Map
	numChannels int
	stop        chan stopReq
}

func NewHub(logger *log.Logger, db database.BoardRepository, su stats.StatsProvider) *Hub {
	su.RegisterMetric(metricConnectedClients)
	su.RegisterMetric(metricActiveChannels)
	su.RegisterMetric(metricPresenceMembers)
	su.RegisterMetric(metricBroadcasts)

	return &Hub{
		log:        logger,
		db:         db,
		stats:      su,
		clients:    make(map[*Client]struct{}),
		joinChan:   make(chan *ClientMessage, 256),
		unloadChan: make(chan *Channel, 256),
		changeChan: make(chan *ServerMessage, 256),
		stop:       make(chan stopReq),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case join := <-h.joinChan:
			h.handleJoin(join)
		case ch := <-h.unloadChan:
			h.handleUnload(ch)
		case change := <-h.changeChan:
			h.handleChange(change)
		case req := <-h.stop:
			h.handleStop(req)
			return
		}
	}
}

func (h *Hub) handleJoin(join *ClientMessage) {
	if join.client.stopped() {
		return
	}

	if ch, ok := h.getChannel(join.Join.Topic); ok {
		select {
		case ch.joinChan <- join:
		default:
			h.log.Printf("join channel full on %q", ch.topic)
			join.client.reply(ErrServiceUnavailable(join.Id))
		}
		return
	}

	kind, canvasId, err := ParseTopic(join.Join.Topic)
	if err != nil {
		join.client.reply(ErrInvalidTopicName(join.Id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	if _, err := h.db.GetCanvas(ctx, canvasId); err != nil {
		if database.IsNotFound(err) {
			join.client.reply(ErrTopicNotFound(join.Id))
		} else {
			h.log.Println("GetCanvas:", err)
			join.client.reply(ErrInternalError(join.Id))
		}
		return
	}

	ch := newChannel(h, join.Join.Topic, kind, canvasId)
	h.addChannel(ch.topic, ch)
	ch.joinChan <- join

	go ch.start()
}

func (h *Hub) handleUnload(ch *Channel) {
	cur, ok := h.getChannel(ch.topic)
	if !ok || cur != ch {
		return
	}

	done := make(chan bool, 1)
	ch.exit <- exitReq{done: done}
	if <-done {
		h.log.Printf("unloaded idle channel %q", ch.topic)
		h.removeChannel(ch.topic)
	}
}

func (h *Hub) handleChange(change *ServerMessage) {
	ch, ok := h.getChannel(change.Change.Topic)
	if !ok {
		return
	}

	select {
	case ch.changeChan <- change:
	default:
		h.log.Printf("change channel full on %q", ch.topic)
	}
}

func (h *Hub) handleStop(req stopReq) {
	h.log.Println("shutting down channels")
	h.channelsMap.Range(func(key, value any) bool {
		ch := value.(*Channel)
		done := make(chan bool, 1)
		ch.exit <- exitReq{shutdown: true, done: done}
		<-done
		h.removeChannel(ch.topic)
		return true
	})

	h.clientsLock.Lock()
	for c := range h.clients {
		c.stopClient()
	}
	h.clientsLock.Unlock()

	close(req.done)
}

// PublishChange notifies subscribers of the objects topic of canvasId
// that a row changed. Nothing is sent when no one is subscribed.
func (h *Hub) PublishChange(canvasId string, changeType ChangeType, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Change: &Change{
			Topic:  Topic(KindObjects, canvasId),
			Type:   changeType,
			Record: raw,
		},
	}

	select {
	case h.changeChan <- msg:
	default:
		h.log.Printf("change queue full, dropping %s for %q", changeType, canvasId)
	}

	return nil
}

// Accept takes ownership of an upgraded connection and starts its pumps.
func (h *Hub) Accept(conn *websocket.Conn, sessionId string) *Client {
	c := NewClient(sessionId, conn, h, h.log)
	h.RegisterClient(c)

	go c.Write()
	go c.Read()

	return c
}

func (h *Hub) RegisterClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	h.clients[c] = struct{}{}
	h.stats.Incr(metricConnectedClients)
}

func (h *Hub) DeregisterClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.stats.Decr(metricConnectedClients)
	}
}

func (h *Hub) addChannel(topic string, ch *Channel) {
	h.channelsMap.Store(topic, ch)
	h.numChannels++
	h.stats.Incr(metricActiveChannels)
}

func (h *Hub) getChannel(topic string) (*Channel, bool) {
	v, ok := h.channelsMap.Load(topic)
	if !ok {
		return nil, false
	}
	return v.(*Channel), true
}

func (h *Hub) removeChannel(topic string) {
	if _, ok := h.channelsMap.LoadAndDelete(topic); ok {
		h.numChannels--
		h.stats.Decr(metricActiveChannels)
	}
}

func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Println("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case h.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
