package realtime

import (
	"encoding/json"
	"net/http"
	"time"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is sent by a connection to the hub. Exactly one of the
// action fields is set. Responses are only sent for messages with an id.
type ClientMessage struct {
	BaseMessage
	Join      *Join      `json:"join,omitempty"`
	Leave     *Leave     `json:"leave,omitempty"`
	Broadcast *Broadcast `json:"broadcast,omitempty"`
	Track     *Track     `json:"track,omitempty"`
	client    *Client    `json:"-"`
}

type Join struct {
	Topic string `json:"topic"`
	// Self enables receiving your own broadcasts on this topic.
	Self        bool   `json:"self,omitempty"`
	PresenceKey string `json:"presence_key,omitempty"`
}

type Leave struct {
	Topic string `json:"topic"`
}

type Broadcast struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Track struct {
	Topic string          `json:"topic"`
	Meta  json.RawMessage `json:"meta,omitempty"`
}

type ServerMessage struct {
	BaseMessage
	Response   *Response  `json:"response,omitempty"`
	Broadcast  *Broadcast `json:"broadcast,omitempty"`
	Presence   *Presence  `json:"presence,omitempty"`
	Change     *Change    `json:"change,omitempty"`
	SkipClient *Client    `json:"-"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Presence is a full membership snapshot of a topic. Seq increases with
// every snapshot a topic emits; receivers drop snapshots older than the
// last one they applied.
type Presence struct {
	Topic  string                       `json:"topic"`
	Seq    int64                        `json:"seq"`
	State  map[string][]json.RawMessage `json:"state"`
	Joins  []string                     `json:"joins,omitempty"`
	Leaves []string                     `json:"leaves,omitempty"`
}

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is a row-change notification published on an objects topic.
type Change struct {
	Topic  string          `json:"topic"`
	Type   ChangeType      `json:"type"`
	Record json.RawMessage `json:"record"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return newResponse(id, http.StatusOK, "", data)
}

func NoErrAccepted(id int) *ServerMessage {
	return newResponse(id, http.StatusAccepted, "", nil)
}

func ErrTopicNotFound(id int) *ServerMessage {
	return newResponse(id, http.StatusNotFound, "topic not found", nil)
}

func ErrNotJoined(id int) *ServerMessage {
	return newResponse(id, http.StatusNotFound, "topic not joined", nil)
}

func ErrInvalidTopicName(id int) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, "invalid topic", nil)
}

func ErrPresenceKeyRequired(id int) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, "presence key required", nil)
}

func ErrReadOnlyTopic(id int) *ServerMessage {
	return newResponse(id, http.StatusForbidden, "topic is read only", nil)
}

func ErrInternalError(id int) *ServerMessage {
	return newResponse(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return newResponse(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	if id < 0 {
		id = 0
	}
	return newResponse(id, http.StatusBadRequest, "invalid message format", nil)
}

func newResponse(id, code int, errMsg string, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
