package api

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/earth-board/internal/config"
	"github.com/npezzotti/earth-board/internal/database"
	"github.com/npezzotti/earth-board/internal/lifecycle"
	"github.com/npezzotti/earth-board/internal/realtime"
)

type Hub interface {
	Accept(conn *websocket.Conn, sessionId string) *realtime.Client
	PublishChange(canvasId string, changeType realtime.ChangeType, record any) error
}

type CanvasLifecycle interface {
	ResolveActiveCanvas(ctx context.Context) (database.Canvas, error)
	Rollover(ctx context.Context) (lifecycle.RolloverResult, error)
}

type SnapshotUploader interface {
	Upload(ctx context.Context, canvasId string, body io.Reader) (string, error)
}

type BoardApp struct {
	log            *log.Logger
	db             database.BoardRepository
	mux            *http.Server
	hub            Hub
	lc             CanvasLifecycle
	snapshots      SnapshotUploader
	signingKey     []byte
	allowedOrigins []string
}

// NewBoardApp registers the HTTP API on mux. snapshots may be nil, in
// which case snapshot uploads answer 503.
func NewBoardApp(mux *http.ServeMux, logger *log.Logger, hub Hub, db database.BoardRepository, lc CanvasLifecycle, snapshots SnapshotUploader, cfg *config.Config) *BoardApp {
	s := &BoardApp{
		log:            logger,
		db:             db,
		hub:            hub,
		lc:             lc,
		snapshots:      snapshots,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /api/session", s.sessionMiddleware(s.session))
	mux.HandleFunc("GET /api/canvas/active", s.getActiveCanvas)
	mux.HandleFunc("GET /api/canvases/archived", s.getArchivedCanvases)
	mux.HandleFunc("GET /api/canvases/{id}", s.getCanvas)
	mux.HandleFunc("GET /api/canvases/{id}/objects", s.getObjects)
	mux.HandleFunc("POST /api/canvases/{id}/objects", s.sessionMiddleware(s.createObject))
	mux.HandleFunc("PUT /api/canvases/{id}/snapshot", s.uploadSnapshot)
	mux.HandleFunc("PATCH /api/objects/{id}", s.sessionMiddleware(s.updateObject))
	mux.HandleFunc("DELETE /api/objects/{id}", s.sessionMiddleware(s.deleteObject))
	mux.HandleFunc("POST /api/admin/rollover", s.serviceMiddleware(s.rollover))
	mux.HandleFunc("GET /ws", s.sessionMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization", sessionHeader}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *BoardApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *BoardApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
