package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/earth-board/internal/config"
	"github.com/npezzotti/earth-board/internal/database"
	"github.com/npezzotti/earth-board/internal/lifecycle"
	"github.com/npezzotti/earth-board/internal/realtime"
	"github.com/npezzotti/earth-board/internal/testutil"
	"github.com/stretchr/testify/mock"
)

var testSigningKey = []byte("test-signing-key")

type mockHub struct {
	mock.Mock
}

func (m *mockHub) Accept(conn *websocket.Conn, sessionId string) *realtime.Client {
	m.Called(sessionId)
	conn.Close()
	return nil
}

func (m *mockHub) PublishChange(canvasId string, changeType realtime.ChangeType, record any) error {
	args := m.Called(canvasId, changeType, record)
	return args.Error(0)
}

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) ResolveActiveCanvas(ctx context.Context) (database.Canvas, error) {
	args := m.Called()
	return args.Get(0).(database.Canvas), args.Error(1)
}

func (m *mockLifecycle) Rollover(ctx context.Context) (lifecycle.RolloverResult, error) {
	args := m.Called()
	return args.Get(0).(lifecycle.RolloverResult), args.Error(1)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, canvasId string, body io.Reader) (string, error) {
	b, _ := io.ReadAll(body)
	args := m.Called(canvasId, string(b))
	return args.String(0), args.Error(1)
}

type testApp struct {
	*BoardApp
	db  *database.MockBoardRepository
	hub *mockHub
	lc  *mockLifecycle
}

func newTestApp(t *testing.T, snapshots SnapshotUploader) *testApp {
	ta := &testApp{
		db:  &database.MockBoardRepository{},
		hub: &mockHub{},
		lc:  &mockLifecycle{},
	}
	ta.BoardApp = NewBoardApp(http.NewServeMux(), testutil.TestLogger(t), ta.hub, ta.db, ta.lc, snapshots, &config.Config{
		ServerAddr:     "localhost:8080",
		SigningKey:     testSigningKey,
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	t.Cleanup(func() {
		ta.db.AssertExpectations(t)
		ta.hub.AssertExpectations(t)
		ta.lc.AssertExpectations(t)
	})
	return ta
}

func (ta *testApp) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ta.mux.Handler.ServeHTTP(rr, req)
	return rr
}
