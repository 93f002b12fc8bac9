package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// invalidTextRepresentation is raised when an id is not a valid UUID.
const invalidTextRepresentation pq.ErrorCode = "22P02"

// ErrCanvasNotActive is returned when archiving a canvas that is no longer active.
var ErrCanvasNotActive = errors.New("canvas is not active")

// IsNotFound reports whether err means the requested row does not exist.
// A malformed id can't name any row, so it counts as not found.
func IsNotFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}

	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation
}

type BoardRepository interface {
	Ping(ctx context.Context) error

	GetCanvas(ctx context.Context, id string) (Canvas, error)
	GetActiveCanvasForDate(ctx context.Context, date string) (Canvas, error)
	ListActiveCanvases(ctx context.Context) ([]Canvas, error)
	ListCanvases(ctx context.Context) ([]Canvas, error)
	ListArchivedCanvases(ctx context.Context) ([]Canvas, error)
	CountCanvases(ctx context.Context) (int, error)
	CreateCanvasIfAbsent(ctx context.Context, params CreateCanvasParams) (Canvas, bool, error)
	ArchiveCanvas(ctx context.Context, id string, at time.Time) (Canvas, error)
	ArchiveAndCreate(ctx context.Context, params ArchiveAndCreateParams) (ArchiveAndCreateResult, error)
	UpdateCanvasCounts(ctx context.Context, id string, objectCount, participantCount int) error
	SetSnapshotURL(ctx context.Context, id, url string) (Canvas, error)

	GetObject(ctx context.Context, id string) (CanvasObject, error)
	ListObjects(ctx context.Context, canvasId string) ([]CanvasObject, error)
	ListAllObjects(ctx context.Context) ([]CanvasObject, error)
	ListObjectAuthors(ctx context.Context, canvasId string) ([]string, error)
	CreateObject(ctx context.Context, params CreateObjectParams) (CanvasObject, error)
	UpdateObject(ctx context.Context, params UpdateObjectParams) (CanvasObject, error)
	DeleteObject(ctx context.Context, id string) (CanvasObject, error)
	MoveObject(ctx context.Context, id, canvasId string) error
}
