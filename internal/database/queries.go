package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	canvasColumns = "id, to_char(date, 'YYYY-MM-DD'), name, status, archived_at, " +
		"object_count, participant_count, COALESCE(snapshot_url, ''), created_at"
	objectColumns = "id, canvas_id, type, data, style, transform, created_by, z_index, " +
		"created_at, COALESCE(updated_at, created_at)"

	insertCanvasIfAbsentQuery = "INSERT INTO canvases (id, date, name, status, created_at) " +
		"SELECT $1, $2::date, $3, 'active', $4 " +
		"WHERE NOT EXISTS (SELECT 1 FROM canvases WHERE status = 'active' AND date = $2::date) " +
		"RETURNING " + canvasColumns
	activeCanvasForDateQuery = "SELECT " + canvasColumns + " FROM canvases " +
		"WHERE status = 'active' AND date = $1::date ORDER BY created_at DESC LIMIT 1"
	archiveCanvasQuery = "UPDATE canvases SET status = 'archived', archived_at = $2 " +
		"WHERE id = $1 AND status = 'active' RETURNING " + canvasColumns
)

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanCanvas(row rowScanner) (Canvas, error) {
	var (
		c          Canvas
		status     string
		archivedAt sql.NullTime
	)
	err := row.Scan(
		&c.Id,
		&c.Date,
		&c.Name,
		&status,
		&archivedAt,
		&c.ObjectCount,
		&c.ParticipantCount,
		&c.SnapshotURL,
		&c.CreatedAt,
	)
	if err != nil {
		return Canvas{}, err
	}

	c.Status = CanvasStatus(status)
	if archivedAt.Valid {
		t := archivedAt.Time
		c.ArchivedAt = &t
	}

	return c, nil
}

func scanObject(row rowScanner) (CanvasObject, error) {
	var (
		o                      CanvasObject
		objType                string
		data, style, transform []byte
	)
	err := row.Scan(
		&o.Id,
		&o.CanvasId,
		&objType,
		&data,
		&style,
		&transform,
		&o.CreatedBy,
		&o.ZIndex,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return CanvasObject{}, err
	}

	o.Type = ObjectType(objType)
	o.Data = data
	o.Style = style
	o.Transform = transform

	return o, nil
}

func (db *PgBoardRepository) listCanvases(ctx context.Context, query string, args ...any) ([]Canvas, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var canvases []Canvas
	for rows.Next() {
		c, err := scanCanvas(rows)
		if err != nil {
			return nil, err
		}
		canvases = append(canvases, c)
	}

	return canvases, rows.Err()
}

func (db *PgBoardRepository) listObjects(ctx context.Context, query string, args ...any) ([]CanvasObject, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []CanvasObject
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}

	return objects, rows.Err()
}

func (db *PgBoardRepository) GetCanvas(ctx context.Context, id string) (Canvas, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+canvasColumns+" FROM canvases WHERE id = $1",
		id,
	)

	return scanCanvas(row)
}

func (db *PgBoardRepository) GetActiveCanvasForDate(ctx context.Context, date string) (Canvas, error) {
	return scanCanvas(db.conn.QueryRowContext(ctx, activeCanvasForDateQuery, date))
}

func (db *PgBoardRepository) ListActiveCanvases(ctx context.Context) ([]Canvas, error) {
	return db.listCanvases(ctx,
		"SELECT "+canvasColumns+" FROM canvases "+
			"WHERE status = 'active' ORDER BY date DESC, created_at DESC",
	)
}

func (db *PgBoardRepository) ListCanvases(ctx context.Context) ([]Canvas, error) {
	return db.listCanvases(ctx,
		"SELECT "+canvasColumns+" FROM canvases ORDER BY date DESC, created_at DESC",
	)
}

func (db *PgBoardRepository) ListArchivedCanvases(ctx context.Context) ([]Canvas, error) {
	return db.listCanvases(ctx,
		"SELECT "+canvasColumns+" FROM canvases "+
			"WHERE status = 'archived' ORDER BY date DESC, created_at DESC",
	)
}

func (db *PgBoardRepository) CountCanvases(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM canvases").Scan(&count)
	return count, err
}

// createCanvasIfAbsent inserts an active canvas for params.Date unless one
// already exists, in which case the existing canvas is returned. The check
// and the insert are a single statement, but two statements racing under
// READ COMMITTED can still both insert.
func createCanvasIfAbsent(ctx context.Context, q queryer, params CreateCanvasParams) (Canvas, bool, error) {
	c, err := scanCanvas(q.QueryRowContext(ctx, insertCanvasIfAbsentQuery,
		uuid.NewString(),
		params.Date,
		params.Name,
		time.Now().UTC(),
	))
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Canvas{}, false, fmt.Errorf("insert canvas: %w", err)
	}

	// lost the race, re-read the winner
	c, err = scanCanvas(q.QueryRowContext(ctx, activeCanvasForDateQuery, params.Date))
	if err != nil {
		return Canvas{}, false, fmt.Errorf("re-read active canvas: %w", err)
	}

	return c, false, nil
}

func (db *PgBoardRepository) CreateCanvasIfAbsent(ctx context.Context, params CreateCanvasParams) (Canvas, bool, error) {
	return createCanvasIfAbsent(ctx, db.conn, params)
}

func (db *PgBoardRepository) ArchiveCanvas(ctx context.Context, id string, at time.Time) (Canvas, error) {
	c, err := scanCanvas(db.conn.QueryRowContext(ctx, archiveCanvasQuery, id, at.UTC()))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Canvas{}, err
	}

	// distinguish a missing canvas from one that is already archived
	if _, err := db.GetCanvas(ctx, id); err != nil {
		return Canvas{}, err
	}

	return Canvas{}, ErrCanvasNotActive
}

func (db *PgBoardRepository) ArchiveAndCreate(ctx context.Context, params ArchiveAndCreateParams) (ArchiveAndCreateResult, error) {
	var res ArchiveAndCreateResult

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range params.ArchiveIds {
		c, err := scanCanvas(tx.QueryRowContext(ctx, archiveCanvasQuery, id, params.ArchivedAt.UTC()))
		if errors.Is(err, sql.ErrNoRows) {
			// archived concurrently
			continue
		}
		if err != nil {
			return ArchiveAndCreateResult{}, fmt.Errorf("archive canvas %q: %w", id, err)
		}
		res.Archived = append(res.Archived, c)
	}

	res.Canvas, res.Created, err = createCanvasIfAbsent(ctx, tx, params.Create)
	if err != nil {
		return ArchiveAndCreateResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return ArchiveAndCreateResult{}, fmt.Errorf("commit: %w", err)
	}

	return res, nil
}

func (db *PgBoardRepository) UpdateCanvasCounts(ctx context.Context, id string, objectCount, participantCount int) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE canvases SET object_count = $2, participant_count = $3 WHERE id = $1",
		id,
		objectCount,
		participantCount,
	)
	if err != nil {
		return err
	}

	return expectAffected(res)
}

func (db *PgBoardRepository) SetSnapshotURL(ctx context.Context, id, url string) (Canvas, error) {
	return scanCanvas(db.conn.QueryRowContext(ctx,
		"UPDATE canvases SET snapshot_url = $2 WHERE id = $1 RETURNING "+canvasColumns,
		id,
		url,
	))
}

func (db *PgBoardRepository) GetObject(ctx context.Context, id string) (CanvasObject, error) {
	return scanObject(db.conn.QueryRowContext(ctx,
		"SELECT "+objectColumns+" FROM canvas_objects WHERE id = $1",
		id,
	))
}

func (db *PgBoardRepository) ListObjects(ctx context.Context, canvasId string) ([]CanvasObject, error) {
	return db.listObjects(ctx,
		"SELECT "+objectColumns+" FROM canvas_objects "+
			"WHERE canvas_id = $1 ORDER BY z_index ASC, created_at ASC",
		canvasId,
	)
}

func (db *PgBoardRepository) ListAllObjects(ctx context.Context) ([]CanvasObject, error) {
	return db.listObjects(ctx,
		"SELECT "+objectColumns+" FROM canvas_objects ORDER BY created_at ASC",
	)
}

func (db *PgBoardRepository) ListObjectAuthors(ctx context.Context, canvasId string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT created_by FROM canvas_objects WHERE canvas_id = $1",
		canvasId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []string
	for rows.Next() {
		var author string
		if err := rows.Scan(&author); err != nil {
			return nil, err
		}
		authors = append(authors, author)
	}

	return authors, rows.Err()
}

// CreateObject inserts the object and bumps the owning canvas counters in
// the same statement. The participant count includes the new author since
// the CTE cannot observe its own insert.
func (db *PgBoardRepository) CreateObject(ctx context.Context, params CreateObjectParams) (CanvasObject, error) {
	return scanObject(db.conn.QueryRowContext(ctx,
		"WITH inserted AS ("+
			"INSERT INTO canvas_objects (id, canvas_id, type, data, style, transform, created_by, z_index, created_at) "+
			"VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7, $8, $9) RETURNING "+objectColumns+
			"), counters AS ("+
			"UPDATE canvases SET object_count = object_count + 1, participant_count = ("+
			"SELECT COUNT(DISTINCT author) FROM ("+
			"SELECT created_by AS author FROM canvas_objects WHERE canvas_id = $2 UNION SELECT $7::text"+
			") authors) WHERE id = $2"+
			") SELECT * FROM inserted",
		uuid.NewString(),
		params.CanvasId,
		string(params.Type),
		jsonOrEmpty(params.Data),
		jsonOrEmpty(params.Style),
		jsonOrEmpty(params.Transform),
		params.CreatedBy,
		params.ZIndex,
		time.Now().UTC(),
	))
}

func (db *PgBoardRepository) UpdateObject(ctx context.Context, params UpdateObjectParams) (CanvasObject, error) {
	return scanObject(db.conn.QueryRowContext(ctx,
		"UPDATE canvas_objects SET "+
			"data = COALESCE($2::jsonb, data), "+
			"style = COALESCE($3::jsonb, style), "+
			"transform = COALESCE($4::jsonb, transform), "+
			"z_index = COALESCE($5, z_index), "+
			"updated_at = $6 "+
			"WHERE id = $1 RETURNING "+objectColumns,
		params.Id,
		nullJSON(params.Data),
		nullJSON(params.Style),
		nullJSON(params.Transform),
		nullInt(params.ZIndex),
		time.Now().UTC(),
	))
}

func (db *PgBoardRepository) DeleteObject(ctx context.Context, id string) (CanvasObject, error) {
	return scanObject(db.conn.QueryRowContext(ctx,
		"DELETE FROM canvas_objects WHERE id = $1 RETURNING "+objectColumns,
		id,
	))
}

func (db *PgBoardRepository) MoveObject(ctx context.Context, id, canvasId string) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE canvas_objects SET canvas_id = $2 WHERE id = $1",
		id,
		canvasId,
	)
	if err != nil {
		return err
	}

	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func jsonOrEmpty(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
