package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockBoardRepository struct {
	mock.Mock
}

func (m *MockBoardRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockBoardRepository) GetCanvas(ctx context.Context, id string) (Canvas, error) {
	args := m.Called(id)
	return args.Get(0).(Canvas), args.Error(1)
}
func (m *MockBoardRepository) GetActiveCanvasForDate(ctx context.Context, date string) (Canvas, error) {
	args := m.Called(date)
	return args.Get(0).(Canvas), args.Error(1)
}
func (m *MockBoardRepository) ListActiveCanvases(ctx context.Context) ([]Canvas, error) {
	args := m.Called()
	return args.Get(0).([]Canvas), args.Error(1)
}
func (m *MockBoardRepository) ListCanvases(ctx context.Context) ([]Canvas, error) {
	args := m.Called()
	return args.Get(0).([]Canvas), args.Error(1)
}
func (m *MockBoardRepository) ListArchivedCanvases(ctx context.Context) ([]Canvas, error) {
	args := m.Called()
	return args.Get(0).([]Canvas), args.Error(1)
}
func (m *MockBoardRepository) CountCanvases(ctx context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}
func (m *MockBoardRepository) CreateCanvasIfAbsent(ctx context.Context, params CreateCanvasParams) (Canvas, bool, error) {
	args := m.Called(params)
	return args.Get(0).(Canvas), args.Bool(1), args.Error(2)
}
func (m *MockBoardRepository) ArchiveCanvas(ctx context.Context, id string, at time.Time) (Canvas, error) {
	args := m.Called(id, at)
	return args.Get(0).(Canvas), args.Error(1)
}
func (m *MockBoardRepository) ArchiveAndCreate(ctx context.Context, params ArchiveAndCreateParams) (ArchiveAndCreateResult, error) {
	args := m.Called(params)
	return args.Get(0).(ArchiveAndCreateResult), args.Error(1)
}
func (m *MockBoardRepository) UpdateCanvasCounts(ctx context.Context, id string, objectCount, participantCount int) error {
	args := m.Called(id, objectCount, participantCount)
	return args.Error(0)
}
func (m *MockBoardRepository) SetSnapshotURL(ctx context.Context, id, url string) (Canvas, error) {
	args := m.Called(id, url)
	return args.Get(0).(Canvas), args.Error(1)
}
func (m *MockBoardRepository) GetObject(ctx context.Context, id string) (CanvasObject, error) {
	args := m.Called(id)
	return args.Get(0).(CanvasObject), args.Error(1)
}
func (m *MockBoardRepository) ListObjects(ctx context.Context, canvasId string) ([]CanvasObject, error) {
	args := m.Called(canvasId)
	return args.Get(0).([]CanvasObject), args.Error(1)
}
func (m *MockBoardRepository) ListAllObjects(ctx context.Context) ([]CanvasObject, error) {
	args := m.Called()
	return args.Get(0).([]CanvasObject), args.Error(1)
}
func (m *MockBoardRepository) ListObjectAuthors(ctx context.Context, canvasId string) ([]string, error) {
	args := m.Called(canvasId)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockBoardRepository) CreateObject(ctx context.Context, params CreateObjectParams) (CanvasObject, error) {
	args := m.Called(params)
	return args.Get(0).(CanvasObject), args.Error(1)
}
func (m *MockBoardRepository) UpdateObject(ctx context.Context, params UpdateObjectParams) (CanvasObject, error) {
	args := m.Called(params)
	return args.Get(0).(CanvasObject), args.Error(1)
}
func (m *MockBoardRepository) DeleteObject(ctx context.Context, id string) (CanvasObject, error) {
	args := m.Called(id)
	return args.Get(0).(CanvasObject), args.Error(1)
}
func (m *MockBoardRepository) MoveObject(ctx context.Context, id, canvasId string) error {
	args := m.Called(id, canvasId)
	return args.Error(0)
}
