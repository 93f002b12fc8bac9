package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	leaveTimeout   = 2 * time.Second
)

// Client is the server side of one websocket connection.
type Client struct {
	conn         *websocket.Conn
	hub          *Hub
	log          *log.Logger
	sessionId    string
	send         chan *ServerMessage
	channels     map[string]*Channel
	channelsLock sync.RWMutex
	stop         chan struct{}
	stopOnce     sync.Once
}

func NewClient(sessionId string, conn *websocket.Conn, hub *Hub, l *log.Logger) *Client {
	return &Client{
		conn:      conn,
		hub:       hub,
		log:       l,
		sessionId: sessionId,
		send:      make(chan *ServerMessage, 256),
		channels:  make(map[string]*Channel),
		stop:      make(chan struct{}),
	}
}

func (c *Client) SessionId() string {
	return c.sessionId
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// Read pumps messages from the connection until it fails. A missed pong
// closes the connection and runs the leave path for every joined topic.
func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.Timestamp = Now()
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	switch {
	case msg.Join != nil:
		c.joinChannel(msg)
	case msg.Leave != nil:
		c.forward(msg, msg.Leave.Topic, func(ch *Channel) chan *ClientMessage { return ch.leaveChan })
	case msg.Broadcast != nil:
		c.forward(msg, msg.Broadcast.Topic, func(ch *Channel) chan *ClientMessage { return ch.clientMsgChan })
	case msg.Track != nil:
		c.forward(msg, msg.Track.Topic, func(ch *Channel) chan *ClientMessage { return ch.clientMsgChan })
	default:
		c.reply(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) forward(msg *ClientMessage, topic string, target func(*Channel) chan *ClientMessage) {
	ch := c.getChannel(topic)
	if ch == nil {
		c.reply(ErrNotJoined(msg.Id))
		return
	}

	select {
	case target(ch) <- msg:
	default:
		c.log.Printf("channel %q is full", ch.topic)
		c.reply(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) joinChannel(msg *ClientMessage) {
	select {
	case c.hub.joinChan <- msg:
	default:
		c.log.Printf("joinChan full")
		c.reply(ErrServiceUnavailable(msg.Id))
	}
}

// reply queues a response unless the request was fire-and-forget.
func (c *Client) reply(msg *ServerMessage) {
	if msg.Id == 0 && msg.Response != nil && msg.Response.ResponseCode < 300 {
		return
	}
	c.queueMessage(msg)
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full for session %q, dropping message", c.sessionId)
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// cleanup marks the client stopped before collecting its channels, so a
// join that lands afterwards sees the flag and backs out on its own.
func (c *Client) cleanup() {
	c.hub.DeregisterClient(c)
	c.stopClient()
	c.leaveAllChannels()
}

// leaveAllChannels waits up to leaveTimeout per channel so a busy channel
// still drops the member and its presence key.
func (c *Client) leaveAllChannels() {
	c.channelsLock.RLock()
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.channelsLock.RUnlock()

	for _, ch := range channels {
		t := time.NewTimer(leaveTimeout)
		select {
		case ch.leaveChan <- &ClientMessage{
			Leave:  &Leave{Topic: ch.topic},
			client: c,
		}:
		case <-t.C:
			c.log.Printf("leave for %q timed out", ch.topic)
		}
		t.Stop()
	}
}

func (c *Client) addChannel(ch *Channel) {
	c.channelsLock.Lock()
	defer c.channelsLock.Unlock()

	c.channels[ch.topic] = ch
}

func (c *Client) delChannel(topic string) {
	c.channelsLock.Lock()
	defer c.channelsLock.Unlock()

	delete(c.channels, topic)
}

func (c *Client) getChannel(topic string) *Channel {
	c.channelsLock.RLock()
	defer c.channelsLock.RUnlock()

	return c.channels[topic]
}
