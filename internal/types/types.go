package types

import (
	"encoding/json"
	"time"
)

type Canvas struct {
	Id               string     `json:"id"`
	Date             string     `json:"date"`
	Name             string     `json:"name"`
	Status           string     `json:"status"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
	ObjectCount      int        `json:"object_count"`
	ParticipantCount int        `json:"participant_count"`
	SnapshotURL      string     `json:"snapshot_url,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type CanvasObject struct {
	Id        string          `json:"id"`
	CanvasId  string          `json:"canvas_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Style     json.RawMessage `json:"style,omitempty"`
	Transform json.RawMessage `json:"transform,omitempty"`
	CreatedBy string          `json:"created_by"`
	ZIndex    int             `json:"z_index"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CreateObjectRequest struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Style     json.RawMessage `json:"style,omitempty"`
	Transform json.RawMessage `json:"transform,omitempty"`
	ZIndex    int             `json:"z_index"`
}

// UpdateObjectRequest is a partial update; omitted fields keep their value.
type UpdateObjectRequest struct {
	Data      json.RawMessage `json:"data,omitempty"`
	Style     json.RawMessage `json:"style,omitempty"`
	Transform json.RawMessage `json:"transform,omitempty"`
	ZIndex    *int            `json:"z_index,omitempty"`
}

type Session struct {
	SessionId string `json:"session_id"`
}

type RolloverResponse struct {
	Success      bool     `json:"success"`
	Archived     *Canvas  `json:"archived"`
	AlsoArchived []Canvas `json:"also_archived,omitempty"`
	Created      *Canvas  `json:"created,omitempty"`
	Reused       bool     `json:"reused,omitempty"`
	Message      string   `json:"message,omitempty"`
	Error        string   `json:"error,omitempty"`
}
