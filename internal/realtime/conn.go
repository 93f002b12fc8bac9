package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrConnClosed = errors.New("connection closed")

// ResponseError is returned when the hub answers a request with a
// non-2xx response code.
type ResponseError struct {
	Code    int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("realtime: %d %s", e.Code, e.Message)
}

type JoinOptions struct {
	// Self delivers your own broadcasts back to you.
	Self bool
	// PresenceKey is the key Track registers under.
	PresenceKey string
}

// Handlers receive messages for a joined topic. They run on the
// connection's read goroutine and must not block on requests to the
// same connection.
type Handlers struct {
	OnBroadcast func(event string, payload json.RawMessage)
	OnPresence  func(*Presence)
	OnChange    func(*Change)
}

// Transport is the pub/sub capability the session layer is built on.
type Transport interface {
	Join(ctx context.Context, topic string, opts JoinOptions, h Handlers) (Subscription, error)
}

type Subscription interface {
	Topic() string
	// Send broadcasts a fire-and-forget event to the topic.
	Send(ctx context.Context, event string, payload any) error
	Track(ctx context.Context, meta any) error
	Leave(ctx context.Context) error
}

// Conn is a client connection to a Hub.
type Conn struct {
	ws      *websocket.Conn
	log     *log.Logger
	send    chan *ClientMessage
	nextId  int
	pending map[int]chan *Response
	subs    map[string]*subscription
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// Dial connects to the websocket endpoint at url.
func Dial(ctx context.Context, url string, header http.Header, logger *log.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Conn{
		ws:      ws,
		log:     logger,
		send:    make(chan *ClientMessage, 256),
		pending: make(map[int]chan *Response),
		subs:    make(map[string]*subscription),
		done:    make(chan struct{}),
	}

	go c.readLoop()
	go c.writeLoop()

	return c, nil
}

func (c *Conn) Join(ctx context.Context, topic string, opts JoinOptions, h Handlers) (Subscription, error) {
	sub := &subscription{conn: c, topic: topic, handlers: h}

	c.mu.Lock()
	if _, ok := c.subs[topic]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("already joined %q", topic)
	}
	c.subs[topic] = sub
	c.mu.Unlock()

	_, err := c.request(ctx, &ClientMessage{
		Join: &Join{Topic: topic, Self: opts.Self, PresenceKey: opts.PresenceKey},
	})
	if err != nil {
		c.removeSub(topic)
		return nil, err
	}

	return sub, nil
}

// Done is closed once the connection has stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Close() error {
	c.shutdown()
	return nil
}

func (c *Conn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *Conn) readLoop() {
	defer c.shutdown()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.log.Printf("ws: read: %v", err)
				}
			}
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			continue
		}

		c.dispatch(&msg)
	}
}

func (c *Conn) dispatch(msg *ServerMessage) {
	switch {
	case msg.Response != nil:
		c.mu.Lock()
		waiter, ok := c.pending[msg.Id]
		delete(c.pending, msg.Id)
		c.mu.Unlock()

		if ok {
			waiter <- msg.Response
		} else if msg.Response.ResponseCode >= 300 {
			c.log.Printf("unsolicited error response: %d %s", msg.Response.ResponseCode, msg.Response.Error)
		}
	case msg.Broadcast != nil:
		if sub := c.getSub(msg.Broadcast.Topic); sub != nil && sub.handlers.OnBroadcast != nil {
			sub.handlers.OnBroadcast(msg.Broadcast.Event, msg.Broadcast.Payload)
		}
	case msg.Presence != nil:
		if sub := c.getSub(msg.Presence.Topic); sub != nil && sub.handlers.OnPresence != nil {
			sub.handlers.OnPresence(msg.Presence)
		}
	case msg.Change != nil:
		if sub := c.getSub(msg.Change.Topic); sub != nil && sub.handlers.OnChange != nil {
			sub.handlers.OnChange(msg.Change)
		}
	}
}

func (c *Conn) writeLoop() {
	defer c.shutdown()

	for {
		select {
		case msg := <-c.send:
			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, bytes); err != nil {
				c.log.Printf("write message: %s", err)
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// request sends msg with a fresh id and waits for its response.
func (c *Conn) request(ctx context.Context, msg *ClientMessage) (*Response, error) {
	waiter := make(chan *Response, 1)

	c.mu.Lock()
	c.nextId++
	msg.Id = c.nextId
	c.pending[msg.Id] = waiter
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.Id)
		c.mu.Unlock()
	}()

	if err := c.enqueue(ctx, msg); err != nil {
		return nil, err
	}

	select {
	case res := <-waiter:
		if res.ResponseCode >= 300 {
			return nil, &ResponseError{Code: res.ResponseCode, Message: res.Error}
		}
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnClosed
	}
}

func (c *Conn) enqueue(ctx context.Context, msg *ClientMessage) error {
	msg.Timestamp = Now()

	select {
	case c.send <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrConnClosed
	}
}

func (c *Conn) getSub(topic string) *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.subs[topic]
}

func (c *Conn) removeSub(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.subs, topic)
}

type subscription struct {
	conn     *Conn
	topic    string
	handlers Handlers
}

func (s *subscription) Topic() string {
	return s.topic
}

func (s *subscription) Send(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	return s.conn.enqueue(ctx, &ClientMessage{
		Broadcast: &Broadcast{Topic: s.topic, Event: event, Payload: raw},
	})
}

func (s *subscription) Track(ctx context.Context, meta any) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	_, err = s.conn.request(ctx, &ClientMessage{
		Track: &Track{Topic: s.topic, Meta: raw},
	})
	return err
}

func (s *subscription) Leave(ctx context.Context) error {
	defer s.conn.removeSub(s.topic)

	_, err := s.conn.request(ctx, &ClientMessage{
		Leave: &Leave{Topic: s.topic},
	})
	return err
}
