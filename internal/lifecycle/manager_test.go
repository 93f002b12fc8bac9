package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/earth-board/internal/database"
	"github.com/npezzotti/earth-board/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestManager(t *testing.T, db database.BoardRepository, now time.Time) *Manager {
	m := NewManager(testutil.TestLogger(t), db)
	m.now = func() time.Time { return now }
	return m
}

func TestResolveActiveCanvas(t *testing.T) {
	now := time.Date(2026, 1, 13, 17, 0, 0, 0, time.UTC)
	existing := database.Canvas{Id: "c1", Date: "2026-01-13", Name: "I.XIII.MMXXVI", Status: database.CanvasStatusActive}

	t.Run("returns existing canvas", func(t *testing.T) {
		db := &database.MockBoardRepository{}
		db.On("GetActiveCanvasForDate", "2026-01-13").Return(existing, nil)

		m := newTestManager(t, db, now)
		c, err := m.ResolveActiveCanvas(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, existing, c)
		db.AssertNotCalled(t, "CreateCanvasIfAbsent", mock.Anything)
	})

	t.Run("first canvas ever is named the big bang", func(t *testing.T) {
		created := database.Canvas{Id: "c1", Date: "2026-01-13", Name: FirstCanvasName, Status: database.CanvasStatusActive}

		db := &database.MockBoardRepository{}
		db.On("GetActiveCanvasForDate", "2026-01-13").Return(database.Canvas{}, sql.ErrNoRows)
		db.On("CountCanvases").Return(0, nil)
		db.On("CreateCanvasIfAbsent", database.CreateCanvasParams{Date: "2026-01-13", Name: FirstCanvasName}).
			Return(created, true, nil)

		m := newTestManager(t, db, now)
		c, err := m.ResolveActiveCanvas(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, FirstCanvasName, c.Name)
		assert.Equal(t, database.CanvasStatusActive, c.Status)
		db.AssertExpectations(t)
	})

	t.Run("later canvases use the roman date", func(t *testing.T) {
		db := &database.MockBoardRepository{}
		db.On("GetActiveCanvasForDate", "2026-01-13").Return(database.Canvas{}, sql.ErrNoRows)
		db.On("CountCanvases").Return(4, nil)
		db.On("CreateCanvasIfAbsent", database.CreateCanvasParams{Date: "2026-01-13", Name: "I.XIII.MMXXVI"}).
			Return(existing, true, nil)

		m := newTestManager(t, db, now)
		c, err := m.ResolveActiveCanvas(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, "I.XIII.MMXXVI", c.Name)
		db.AssertExpectations(t)
	})

	t.Run("resolving twice returns the same canvas", func(t *testing.T) {
		db := &database.MockBoardRepository{}
		db.On("GetActiveCanvasForDate", "2026-01-13").Return(database.Canvas{}, sql.ErrNoRows).Once()
		db.On("CountCanvases").Return(3, nil).Once()
		db.On("CreateCanvasIfAbsent", mock.Anything).Return(existing, true, nil).Once()
		db.On("GetActiveCanvasForDate", "2026-01-13").Return(existing, nil).Once()

		m := newTestManager(t, db, now)
		first, err := m.ResolveActiveCanvas(context.Background())
		assert.NoError(t, err)
		second, err := m.ResolveActiveCanvas(context.Background())
		assert.NoError(t, err)

		assert.Equal(t, first.Id, second.Id)
		db.AssertNumberOfCalls(t, "CreateCanvasIfAbsent", 1)
	})

	t.Run("lost creation race returns the winner", func(t *testing.T) {
		db := &database.MockBoardRepository{}
		db.On("GetActiveCanvasForDate", "2026-01-13").Return(database.Canvas{}, sql.ErrNoRows)
		db.On("CountCanvases").Return(3, nil)
		db.On("CreateCanvasIfAbsent", mock.Anything).Return(existing, false, nil)

		m := newTestManager(t, db, now)
		c, err := m.ResolveActiveCanvas(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, "c1", c.Id)
	})

	t.Run("lookup error", func(t *testing.T) {
		db := &database.MockBoardRepository{}
		db.On("GetActiveCanvasForDate", "2026-01-13").Return(database.Canvas{}, errors.New("connection refused"))

		m := newTestManager(t, db, now)
		_, err := m.ResolveActiveCanvas(context.Background())

		assert.ErrorContains(t, err, "connection refused")
		db.AssertNotCalled(t, "CreateCanvasIfAbsent", mock.Anything)
	})

	t.Run("create error", func(t *testing.T) {
		db := &database.MockBoardRepository{}
		db.On("GetActiveCanvasForDate", "2026-01-13").Return(database.Canvas{}, sql.ErrNoRows)
		db.On("CountCanvases").Return(1, nil)
		db.On("CreateCanvasIfAbsent", mock.Anything).Return(database.Canvas{}, false, errors.New("insert failed"))

		m := newTestManager(t, db, now)
		_, err := m.ResolveActiveCanvas(context.Background())

		assert.ErrorContains(t, err, "insert failed")
	})
}

func TestRollover(t *testing.T) {
	// 00:00 in the reference zone on 2026-01-14.
	now := time.Date(2026, 1, 14, 5, 0, 0, 0, time.UTC)

	yesterday := database.Canvas{Id: "c1", Date: "2026-01-13", Name: "I.XIII.MMXXVI", Status: database.CanvasStatusActive}
	archivedAt := now.UTC()

	t.Run("archives yesterday and creates today", func(t *testing.T) {
		archived := yesterday
		archived.Status = database.CanvasStatusArchived
		archived.ArchivedAt = &archivedAt
		created := database.Canvas{Id: "c2", Date: "2026-01-14", Name: "I.XIV.MMXXVI", Status: database.CanvasStatusActive}

		db := &database.MockBoardRepository{}
		db.On("ListActiveCanvases").Return([]database.Canvas{yesterday}, nil)
		db.On("CountCanvases").Return(1, nil)
		db.On("ArchiveAndCreate", database.ArchiveAndCreateParams{
			ArchiveIds: []string{"c1"},
			ArchivedAt: archivedAt,
			Create:     database.CreateCanvasParams{Date: "2026-01-14", Name: "I.XIV.MMXXVI"},
		}).Return(database.ArchiveAndCreateResult{
			Archived: []database.Canvas{archived},
			Canvas:   created,
			Created:  true,
		}, nil)

		m := newTestManager(t, db, now)
		res, err := m.Rollover(context.Background())

		assert.NoError(t, err)
		if assert.NotNil(t, res.Archived) {
			assert.Equal(t, "c1", res.Archived.Id)
			assert.Equal(t, database.CanvasStatusArchived, res.Archived.Status)
		}
		assert.Empty(t, res.AlsoArchived)
		assert.Equal(t, "2026-01-14", res.Created.Date)
		assert.Equal(t, database.CanvasStatusActive, res.Created.Status)
		assert.False(t, res.Reused)
		db.AssertExpectations(t)
	})

	t.Run("no active canvas still creates today", func(t *testing.T) {
		created := database.Canvas{Id: "c1", Date: "2026-01-14", Name: FirstCanvasName, Status: database.CanvasStatusActive}

		db := &database.MockBoardRepository{}
		db.On("ListActiveCanvases").Return([]database.Canvas{}, nil)
		db.On("CountCanvases").Return(0, nil)
		db.On("ArchiveAndCreate", mock.MatchedBy(func(p database.ArchiveAndCreateParams) bool {
			return len(p.ArchiveIds) == 0 && p.Create.Name == FirstCanvasName
		})).Return(database.ArchiveAndCreateResult{Canvas: created, Created: true}, nil)

		m := newTestManager(t, db, now)
		res, err := m.Rollover(context.Background())

		assert.NoError(t, err)
		assert.Nil(t, res.Archived)
		assert.Equal(t, "c1", res.Created.Id)
	})

	t.Run("keeps canvas already dated today", func(t *testing.T) {
		today := database.Canvas{Id: "c2", Date: "2026-01-14", Name: "I.XIV.MMXXVI", Status: database.CanvasStatusActive}

		db := &database.MockBoardRepository{}
		db.On("ListActiveCanvases").Return([]database.Canvas{today, yesterday}, nil)
		db.On("CountCanvases").Return(2, nil)
		db.On("ArchiveAndCreate", mock.MatchedBy(func(p database.ArchiveAndCreateParams) bool {
			return len(p.ArchiveIds) == 1 && p.ArchiveIds[0] == "c1"
		})).Return(database.ArchiveAndCreateResult{
			Archived: []database.Canvas{yesterday},
			Canvas:   today,
			Created:  false,
		}, nil)

		m := newTestManager(t, db, now)
		res, err := m.Rollover(context.Background())

		assert.NoError(t, err)
		assert.True(t, res.Reused)
		assert.Equal(t, "c2", res.Created.Id)
	})

	t.Run("archives every stale canvas", func(t *testing.T) {
		older := database.Canvas{Id: "c0", Date: "2026-01-12", Status: database.CanvasStatusActive}

		db := &database.MockBoardRepository{}
		db.On("ListActiveCanvases").Return([]database.Canvas{yesterday, older}, nil)
		db.On("CountCanvases").Return(2, nil)
		db.On("ArchiveAndCreate", mock.MatchedBy(func(p database.ArchiveAndCreateParams) bool {
			return len(p.ArchiveIds) == 2
		})).Return(database.ArchiveAndCreateResult{
			Archived: []database.Canvas{yesterday, older},
			Canvas:   database.Canvas{Id: "c2", Date: "2026-01-14"},
			Created:  true,
		}, nil)

		m := newTestManager(t, db, now)
		res, err := m.Rollover(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, "c1", res.Archived.Id)
		assert.Len(t, res.AlsoArchived, 1)
	})

	t.Run("failure leaves state to the transaction", func(t *testing.T) {
		db := &database.MockBoardRepository{}
		db.On("ListActiveCanvases").Return([]database.Canvas{yesterday}, nil)
		db.On("CountCanvases").Return(1, nil)
		db.On("ArchiveAndCreate", mock.Anything).Return(database.ArchiveAndCreateResult{}, errors.New("tx aborted"))

		m := newTestManager(t, db, now)
		_, err := m.Rollover(context.Background())

		assert.ErrorContains(t, err, "tx aborted")
	})
}
