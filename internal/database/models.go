package database

import (
	"encoding/json"
	"time"
)

type CanvasStatus string

const (
	CanvasStatusActive   CanvasStatus = "active"
	CanvasStatusArchived CanvasStatus = "archived"
)

type ObjectType string

const (
	ObjectTypeStroke    ObjectType = "stroke"
	ObjectTypeSticker   ObjectType = "sticker"
	ObjectTypeText      ObjectType = "text"
	ObjectTypeCircle    ObjectType = "circle"
	ObjectTypeRectangle ObjectType = "rectangle"
)

func (t ObjectType) Valid() bool {
	switch t {
	case ObjectTypeStroke, ObjectTypeSticker, ObjectTypeText, ObjectTypeCircle, ObjectTypeRectangle:
		return true
	}
	return false
}

type Canvas struct {
	Id               string
	Date             string
	Name             string
	Status           CanvasStatus
	ArchivedAt       *time.Time
	ObjectCount      int
	ParticipantCount int
	SnapshotURL      string
	CreatedAt        time.Time
}

type CanvasObject struct {
	Id        string
	CanvasId  string
	Type      ObjectType
	Data      json.RawMessage
	Style     json.RawMessage
	Transform json.RawMessage
	CreatedBy string
	ZIndex    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateCanvasParams struct {
	Date string
	Name string
}

type CreateObjectParams struct {
	CanvasId  string
	Type      ObjectType
	Data      json.RawMessage
	Style     json.RawMessage
	Transform json.RawMessage
	CreatedBy string
	ZIndex    int
}

// UpdateObjectParams carries a partial update. Nil fields are left unchanged.
type UpdateObjectParams struct {
	Id        string
	Data      json.RawMessage
	Style     json.RawMessage
	Transform json.RawMessage
	ZIndex    *int
}

// ArchiveAndCreateParams describes a rollover: the canvases to archive and
// the canvas to create afterwards if none is active for its date.
type ArchiveAndCreateParams struct {
	ArchiveIds []string
	ArchivedAt time.Time
	Create     CreateCanvasParams
}

type ArchiveAndCreateResult struct {
	Archived []Canvas
	Canvas   Canvas
	Created  bool
}
