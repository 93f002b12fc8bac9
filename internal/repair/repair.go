// Package repair fixes board data that drifted from its invariants:
// denormalized counters, objects filed under the wrong day's canvas, and
// days with more than one active canvas.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/npezzotti/earth-board/internal/database"
	"github.com/npezzotti/earth-board/internal/lifecycle"
)

type KeepPolicy string

const (
	KeepLatest   KeepPolicy = "latest"
	KeepEarliest KeepPolicy = "earliest"
)

func ParseKeepPolicy(s string) (KeepPolicy, error) {
	switch KeepPolicy(s) {
	case KeepLatest, KeepEarliest:
		return KeepPolicy(s), nil
	case "":
		return KeepLatest, nil
	}
	return "", fmt.Errorf("unknown keep policy %q", s)
}

type Repairer struct {
	db  database.BoardRepository
	log *log.Logger
	now func() time.Time
	// DryRun reports what would change without writing.
	DryRun bool
}

func NewRepairer(logger *log.Logger, db database.BoardRepository) *Repairer {
	return &Repairer{
		db:  db,
		log: logger,
		now: time.Now,
	}
}

type CountFix struct {
	CanvasId             string `json:"canvas_id"`
	Date                 string `json:"date"`
	PrevObjectCount      int    `json:"prev_object_count"`
	PrevParticipantCount int    `json:"prev_participant_count"`
	ObjectCount          int    `json:"object_count"`
	ParticipantCount     int    `json:"participant_count"`
}

// ReconcileCounts recomputes every canvas's object and distinct author
// counts and overwrites the stored ones that differ.
func (r *Repairer) ReconcileCounts(ctx context.Context) ([]CountFix, error) {
	canvases, err := r.db.ListCanvases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}

	var fixes []CountFix
	for _, c := range canvases {
		authors, err := r.db.ListObjectAuthors(ctx, c.Id)
		if err != nil {
			return fixes, fmt.Errorf("list authors of %q: %w", c.Id, err)
		}

		objects, participants := len(authors), countDistinct(authors)
		if objects == c.ObjectCount && participants == c.ParticipantCount {
			continue
		}

		fix := CountFix{
			CanvasId:             c.Id,
			Date:                 c.Date,
			PrevObjectCount:      c.ObjectCount,
			PrevParticipantCount: c.ParticipantCount,
			ObjectCount:          objects,
			ParticipantCount:     participants,
		}
		r.log.Printf("canvas %q (%s): objects %d -> %d, participants %d -> %d",
			c.Id, c.Date, c.ObjectCount, objects, c.ParticipantCount, participants)

		if !r.DryRun {
			if err := r.db.UpdateCanvasCounts(ctx, c.Id, objects, participants); err != nil {
				return fixes, fmt.Errorf("update counts of %q: %w", c.Id, err)
			}
		}
		fixes = append(fixes, fix)
	}

	return fixes, nil
}

func countDistinct(authors []string) int {
	seen := make(map[string]struct{}, len(authors))
	for _, a := range authors {
		if a == "" {
			continue
		}
		seen[a] = struct{}{}
	}
	return len(seen)
}

type Relocation struct {
	ObjectId     string `json:"object_id"`
	Date         string `json:"date"`
	FromCanvasId string `json:"from_canvas_id"`
	ToCanvasId   string `json:"to_canvas_id,omitempty"`
}

type RelocationReport struct {
	Moved []Relocation `json:"moved"`
	// Unmatched objects belong to a day that has no canvas; they are left
	// where they are.
	Unmatched []Relocation `json:"unmatched"`
	// Orphaned objects reference a canvas that does not exist.
	Orphaned []string `json:"orphaned"`
}

// RelocateObjects moves every object whose creation date in the reference
// zone differs from its canvas's date onto the canvas for that date.
// Counters are not adjusted; run ReconcileCounts afterwards.
func (r *Repairer) RelocateObjects(ctx context.Context) (RelocationReport, error) {
	var report RelocationReport

	canvases, err := r.db.ListCanvases(ctx)
	if err != nil {
		return report, fmt.Errorf("list canvases: %w", err)
	}
	byId, byDate := indexCanvases(canvases)

	objects, err := r.db.ListAllObjects(ctx)
	if err != nil {
		return report, fmt.Errorf("list objects: %w", err)
	}

	for _, o := range objects {
		owner, ok := byId[o.CanvasId]
		if !ok {
			r.log.Printf("object %q references unknown canvas %q", o.Id, o.CanvasId)
			report.Orphaned = append(report.Orphaned, o.Id)
			continue
		}

		date := lifecycle.DateOf(o.CreatedAt)
		if date == owner.Date {
			continue
		}

		rel := Relocation{ObjectId: o.Id, Date: date, FromCanvasId: o.CanvasId}
		target, ok := byDate[date]
		if !ok {
			r.log.Printf("no canvas for %s, leaving object %q on %q", date, o.Id, o.CanvasId)
			report.Unmatched = append(report.Unmatched, rel)
			continue
		}

		rel.ToCanvasId = target.Id
		r.log.Printf("moving object %q from %q (%s) to %q (%s)", o.Id, owner.Id, owner.Date, target.Id, date)
		if !r.DryRun {
			if err := r.db.MoveObject(ctx, o.Id, target.Id); err != nil {
				return report, fmt.Errorf("move object %q: %w", o.Id, err)
			}
		}
		report.Moved = append(report.Moved, rel)
	}

	return report, nil
}

// indexCanvases maps ids and dates to canvases. When a date has several
// canvases the active one wins, then the most recently created.
func indexCanvases(canvases []database.Canvas) (map[string]database.Canvas, map[string]database.Canvas) {
	byId := make(map[string]database.Canvas, len(canvases))
	byDate := make(map[string]database.Canvas, len(canvases))

	for _, c := range canvases {
		byId[c.Id] = c

		cur, ok := byDate[c.Date]
		switch {
		case !ok:
			byDate[c.Date] = c
		case cur.Status != database.CanvasStatusActive && c.Status == database.CanvasStatusActive:
			byDate[c.Date] = c
		case cur.Status == c.Status && c.CreatedAt.After(cur.CreatedAt):
			byDate[c.Date] = c
		}
	}

	return byId, byDate
}

type DuplicateReport struct {
	Survivor *database.Canvas `json:"survivor"`
	Archived []database.Canvas `json:"archived"`
}

// ArchiveDuplicates restores the single active canvas: every active
// canvas not dated today is archived, and of today's actives only the one
// chosen by keep survives.
func (r *Repairer) ArchiveDuplicates(ctx context.Context, keep KeepPolicy) (DuplicateReport, error) {
	var report DuplicateReport

	active, err := r.db.ListActiveCanvases(ctx)
	if err != nil {
		return report, fmt.Errorf("list active canvases: %w", err)
	}

	now := r.now()
	today := lifecycle.DateOf(now)

	var todays, stale []database.Canvas
	for _, c := range active {
		if c.Date == today {
			todays = append(todays, c)
		} else {
			stale = append(stale, c)
		}
	}

	if len(todays) > 0 {
		sort.SliceStable(todays, func(i, j int) bool {
			if keep == KeepEarliest {
				return todays[i].CreatedAt.Before(todays[j].CreatedAt)
			}
			return todays[i].CreatedAt.After(todays[j].CreatedAt)
		})
		survivor := todays[0]
		report.Survivor = &survivor
		stale = append(stale, todays[1:]...)
	}

	for _, c := range stale {
		r.log.Printf("archiving duplicate canvas %q (%s)", c.Id, c.Date)
		if r.DryRun {
			report.Archived = append(report.Archived, c)
			continue
		}

		archived, err := r.db.ArchiveCanvas(ctx, c.Id, now.UTC())
		if errors.Is(err, database.ErrCanvasNotActive) {
			r.log.Printf("canvas %q was already archived", c.Id)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("archive canvas %q: %w", c.Id, err)
		}
		report.Archived = append(report.Archived, archived)
	}

	return report, nil
}
