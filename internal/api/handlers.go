package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/earth-board/internal/database"
	"github.com/npezzotti/earth-board/internal/lifecycle"
	"github.com/npezzotti/earth-board/internal/realtime"
	"github.com/npezzotti/earth-board/internal/types"
)

const (
	maxObjectBodyBytes   = 1 << 20
	maxSnapshotBodyBytes = 10 << 20
	pngContentType       = "image/png"
)

func (s *BoardApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *BoardApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Println(errResp.Error())
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func toCanvas(c database.Canvas) types.Canvas {
	return types.Canvas{
		Id:               c.Id,
		Date:             c.Date,
		Name:             c.Name,
		Status:           string(c.Status),
		ArchivedAt:       c.ArchivedAt,
		ObjectCount:      c.ObjectCount,
		ParticipantCount: c.ParticipantCount,
		SnapshotURL:      c.SnapshotURL,
		CreatedAt:        c.CreatedAt,
	}
}

func toObject(o database.CanvasObject) types.CanvasObject {
	return types.CanvasObject{
		Id:        o.Id,
		CanvasId:  o.CanvasId,
		Type:      string(o.Type),
		Data:      o.Data,
		Style:     o.Style,
		Transform: o.Transform,
		CreatedBy: o.CreatedBy,
		ZIndex:    o.ZIndex,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func isNullJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func (s *BoardApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Printf("health check: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *BoardApp) session(w http.ResponseWriter, r *http.Request) {
	sessionId, _ := SessionId(r.Context())
	s.writeJson(w, http.StatusOK, types.Session{SessionId: sessionId})
}

func (s *BoardApp) getActiveCanvas(w http.ResponseWriter, r *http.Request) {
	c, err := s.lc.ResolveActiveCanvas(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toCanvas(c))
}

func (s *BoardApp) getArchivedCanvases(w http.ResponseWriter, r *http.Request) {
	canvases, err := s.db.ListArchivedCanvases(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	res := make([]types.Canvas, 0, len(canvases))
	for _, c := range canvases {
		res = append(res, toCanvas(c))
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *BoardApp) getCanvas(w http.ResponseWriter, r *http.Request) {
	c, err := s.db.GetCanvas(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, newLookupError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toCanvas(c))
}

func (s *BoardApp) getObjects(w http.ResponseWriter, r *http.Request) {
	canvasId := r.PathValue("id")
	if _, err := s.db.GetCanvas(r.Context(), canvasId); err != nil {
		s.writeError(w, newLookupError(err))
		return
	}

	objects, err := s.db.ListObjects(r.Context(), canvasId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	res := make([]types.CanvasObject, 0, len(objects))
	for _, o := range objects {
		res = append(res, toObject(o))
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *BoardApp) createObject(w http.ResponseWriter, r *http.Request) {
	sessionId, ok := SessionId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req types.CreateObjectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxObjectBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	objType := database.ObjectType(req.Type)
	if !objType.Valid() || isNullJSON(req.Data) {
		s.writeError(w, NewBadRequestError())
		return
	}

	canvasId := r.PathValue("id")
	c, err := s.db.GetCanvas(r.Context(), canvasId)
	if err != nil {
		s.writeError(w, newLookupError(err))
		return
	}
	if c.Status != database.CanvasStatusActive {
		s.writeError(w, NewConflictError("canvas is archived"))
		return
	}

	obj, err := s.db.CreateObject(r.Context(), database.CreateObjectParams{
		CanvasId:  canvasId,
		Type:      objType,
		Data:      req.Data,
		Style:     req.Style,
		Transform: req.Transform,
		CreatedBy: sessionId,
		ZIndex:    req.ZIndex,
	})
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	res := toObject(obj)
	s.publishChange(obj.CanvasId, realtime.ChangeInsert, res)
	s.writeJson(w, http.StatusCreated, res)
}

func (s *BoardApp) updateObject(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateObjectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxObjectBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if errResp := s.checkObjectWritable(r.Context(), r.PathValue("id")); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	obj, err := s.db.UpdateObject(r.Context(), database.UpdateObjectParams{
		Id:        r.PathValue("id"),
		Data:      req.Data,
		Style:     req.Style,
		Transform: req.Transform,
		ZIndex:    req.ZIndex,
	})
	if err != nil {
		s.writeError(w, newLookupError(err))
		return
	}

	res := toObject(obj)
	s.publishChange(obj.CanvasId, realtime.ChangeUpdate, res)
	s.writeJson(w, http.StatusOK, res)
}

func (s *BoardApp) deleteObject(w http.ResponseWriter, r *http.Request) {
	if errResp := s.checkObjectWritable(r.Context(), r.PathValue("id")); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	obj, err := s.db.DeleteObject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, newLookupError(err))
		return
	}

	s.publishChange(obj.CanvasId, realtime.ChangeDelete, toObject(obj))
	w.WriteHeader(http.StatusNoContent)
}

// checkObjectWritable rejects changes to objects on archived canvases.
// Like the create path, the check is a read ahead of the write.
func (s *BoardApp) checkObjectWritable(ctx context.Context, objectId string) *ApiError {
	obj, err := s.db.GetObject(ctx, objectId)
	if err != nil {
		return newLookupError(err)
	}

	c, err := s.db.GetCanvas(ctx, obj.CanvasId)
	if err != nil {
		return newLookupError(err)
	}
	if c.Status != database.CanvasStatusActive {
		return NewConflictError("canvas is archived")
	}

	return nil
}

// publishChange is best effort; subscribers that miss a change see it on
// their next full load.
func (s *BoardApp) publishChange(canvasId string, changeType realtime.ChangeType, record types.CanvasObject) {
	if err := s.hub.PublishChange(canvasId, changeType, record); err != nil {
		s.log.Printf("publish %s for %q: %v", changeType, record.Id, err)
	}
}

func (s *BoardApp) uploadSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		s.writeError(w, NewServiceUnavailableError("snapshot storage is not configured"))
		return
	}

	canvasId := r.PathValue("id")
	if _, err := s.db.GetCanvas(r.Context(), canvasId); err != nil {
		s.writeError(w, newLookupError(err))
		return
	}

	body := bufio.NewReader(http.MaxBytesReader(w, r.Body, maxSnapshotBodyBytes))
	head, _ := body.Peek(512)
	if http.DetectContentType(head) != pngContentType {
		s.writeError(w, NewUnsupportedMediaTypeError())
		return
	}

	url, err := s.snapshots.Upload(r.Context(), canvasId, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, NewRequestTooLargeError())
			return
		}
		s.writeError(w, NewInternalServerError(fmt.Errorf("upload snapshot: %w", err)))
		return
	}

	c, err := s.db.SetSnapshotURL(r.Context(), canvasId, url)
	if err != nil {
		s.writeError(w, newLookupError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toCanvas(c))
}

func (s *BoardApp) rollover(w http.ResponseWriter, r *http.Request) {
	res, err := s.lc.Rollover(r.Context())
	if err != nil {
		s.log.Printf("rollover: %v", err)
		s.writeJson(w, http.StatusInternalServerError, types.RolloverResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	s.writeJson(w, http.StatusOK, newRolloverResponse(res))
}

func newRolloverResponse(res lifecycle.RolloverResult) types.RolloverResponse {
	created := toCanvas(res.Created)
	resp := types.RolloverResponse{
		Success: true,
		Created: &created,
		Reused:  res.Reused,
	}

	if res.Archived != nil {
		archived := toCanvas(*res.Archived)
		resp.Archived = &archived
	}
	for _, c := range res.AlsoArchived {
		resp.AlsoArchived = append(resp.AlsoArchived, toCanvas(c))
	}

	switch {
	case resp.Archived == nil && res.Reused:
		resp.Message = fmt.Sprintf("nothing to archive, %s is already active", created.Name)
	case resp.Archived == nil:
		resp.Message = fmt.Sprintf("nothing to archive, created %s", created.Name)
	case res.Reused:
		resp.Message = fmt.Sprintf("archived %s, kept %s", resp.Archived.Name, created.Name)
	default:
		resp.Message = fmt.Sprintf("archived %s, created %s", resp.Archived.Name, created.Name)
	}

	return resp
}

func (s *BoardApp) serveWs(w http.ResponseWriter, r *http.Request) {
	sessionId, ok := SessionId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.hub.Accept(conn, sessionId)
}
