package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/npezzotti/earth-board/internal/database"
)

// Manager owns the single active canvas. It resolves today's canvas,
// creating it when missing, and performs the daily rollover.
//
// The "one active canvas" rule is kept by the rollover and by repair
// tooling, not by a lock: two resolvers racing on an empty day may both
// create a canvas. CreateCanvasIfAbsent narrows that window to a single
// statement.
type Manager struct {
	log *log.Logger
	db  database.BoardRepository
	now func() time.Time
}

func NewManager(logger *log.Logger, db database.BoardRepository) *Manager {
	return &Manager{
		log: logger,
		db:  db,
		now: time.Now,
	}
}

type RolloverResult struct {
	// Archived is the most recent canvas archived by the rollover, nil
	// when there was no active canvas.
	Archived *database.Canvas
	// AlsoArchived holds any further stale active canvases.
	AlsoArchived []database.Canvas
	Created      database.Canvas
	// Reused is set when today's canvas already existed.
	Reused bool
}

// Today returns the current reference date.
func (m *Manager) Today() string {
	return DateOf(m.now())
}

func (m *Manager) ResolveActiveCanvas(ctx context.Context) (database.Canvas, error) {
	today := m.Today()

	c, err := m.db.GetActiveCanvasForDate(ctx, today)
	if err == nil {
		return c, nil
	}
	if !database.IsNotFound(err) {
		return database.Canvas{}, fmt.Errorf("get active canvas: %w", err)
	}

	params, err := m.newCanvasParams(ctx, today)
	if err != nil {
		return database.Canvas{}, err
	}

	c, created, err := m.db.CreateCanvasIfAbsent(ctx, params)
	if err != nil {
		return database.Canvas{}, fmt.Errorf("create canvas: %w", err)
	}

	if created {
		m.log.Printf("created canvas %q (%s) for %s", c.Id, c.Name, c.Date)
	} else {
		m.log.Printf("canvas for %s already created as %q", today, c.Id)
	}

	return c, nil
}

func (m *Manager) Rollover(ctx context.Context) (RolloverResult, error) {
	now := m.now()
	today := DateOf(now)

	active, err := m.db.ListActiveCanvases(ctx)
	if err != nil {
		return RolloverResult{}, fmt.Errorf("list active canvases: %w", err)
	}

	var archiveIds []string
	for _, c := range active {
		if c.Date == today {
			m.log.Printf("canvas %q is already active for %s, keeping it", c.Id, today)
			continue
		}
		archiveIds = append(archiveIds, c.Id)
	}

	if len(active) == 0 {
		m.log.Println("no active canvas to archive")
	} else if len(active) > 1 {
		m.log.Printf("found %d active canvases", len(active))
	}

	params, err := m.newCanvasParams(ctx, today)
	if err != nil {
		return RolloverResult{}, err
	}

	res, err := m.db.ArchiveAndCreate(ctx, database.ArchiveAndCreateParams{
		ArchiveIds: archiveIds,
		ArchivedAt: now.UTC(),
		Create:     params,
	})
	if err != nil {
		return RolloverResult{}, fmt.Errorf("archive and create: %w", err)
	}

	result := RolloverResult{
		Created: res.Canvas,
		Reused:  !res.Created,
	}
	if len(res.Archived) > 0 {
		archived := res.Archived[0]
		result.Archived = &archived
		result.AlsoArchived = res.Archived[1:]
	}

	return result, nil
}

func (m *Manager) newCanvasParams(ctx context.Context, date string) (database.CreateCanvasParams, error) {
	count, err := m.db.CountCanvases(ctx)
	if err != nil {
		return database.CreateCanvasParams{}, fmt.Errorf("count canvases: %w", err)
	}

	name, err := CanvasName(date, count == 0)
	if err != nil {
		return database.CreateCanvasParams{}, err
	}

	return database.CreateCanvasParams{
		Date: date,
		Name: name,
	}, nil
}
