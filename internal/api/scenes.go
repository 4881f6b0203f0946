package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// maxQueryParamLen limits query parameter length to prevent DoS via oversized URL params.
const maxQueryParamLen = 100

// storeSceneRequest is the body of POST /scenes/{number}/store.
type storeSceneRequest struct {
	Name string `json:"name"`
}

// captureRequest is the body of POST /snapshots. An empty DeviceID
// captures every device.
type captureRequest struct {
	DeviceID    string `json:"device_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// recallRequest is the optional body of POST /snapshots/{id}/recall.
// Without a scope everything is recalled.
type recallRequest struct {
	Scope *mixer.SceneRecallScope `json:"scope,omitempty"`
}

// sceneNumber parses the {number} URL parameter.
func sceneNumber(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	return n, err == nil && n > 0
}

// handleListScenes returns the hardware scene list of every device.
// Devices that fail to answer are reported under "errors".
func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.manager.Scenes(r.Context())
	resp := map[string]any{"scenes": scenes}
	if err != nil {
		s.logger.Warn("scene list incomplete", "error", err)
		resp["errors"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRecallScene recalls a hardware scene on every device.
func (s *Server) handleRecallScene(w http.ResponseWriter, r *http.Request) {
	n, ok := sceneNumber(r)
	if !ok {
		writeBadRequest(w, "invalid scene number")
		return
	}
	if err := s.manager.RecallScene(r.Context(), n); err != nil {
		s.writeMixerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recalled": n})
}

// handleStoreScene stores the current state into a hardware scene slot.
func (s *Server) handleStoreScene(w http.ResponseWriter, r *http.Request) {
	n, ok := sceneNumber(r)
	if !ok {
		writeBadRequest(w, "invalid scene number")
		return
	}
	var req storeSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Name) > maxQueryParamLen {
		writeBadRequest(w, "name exceeds maximum length")
		return
	}
	scenes, err := s.manager.StoreScene(r.Context(), n, req.Name)
	if err != nil && len(scenes) == 0 {
		s.writeMixerError(w, err)
		return
	}
	resp := map[string]any{"stored": n, "snapshots": scenes}
	if err != nil {
		resp["errors"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListSnapshots returns the in-memory snapshots.
//
// Query parameters:
//   - device: filter by device
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots := s.manager.Snapshots()
	if dev := r.URL.Query().Get("device"); dev != "" {
		snapshots = slices.DeleteFunc(snapshots, func(sc *mixer.Scene) bool { return sc.DeviceID != dev })
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots, "count": len(snapshots)})
}

// handleCaptureSnapshot captures one snapshot per addressed device.
func (s *Server) handleCaptureSnapshot(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}
	if len(req.Name) > maxQueryParamLen {
		writeBadRequest(w, "name exceeds maximum length")
		return
	}
	scenes, err := s.manager.CaptureSnapshot(req.DeviceID, req.Name, req.Description)
	if err != nil {
		s.writeMixerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"snapshots": scenes, "count": len(scenes)})
}

// handleGetSnapshot returns one snapshot.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snapshots := s.manager.Snapshots()
	i := slices.IndexFunc(snapshots, func(sc *mixer.Scene) bool { return sc.ID == id })
	if i < 0 {
		writeNotFound(w, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshots[i])
}

// handleDeleteSnapshot removes a snapshot.
func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteSnapshot(chi.URLParam(r, "id")); err != nil {
		s.writeMixerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecallSnapshot re-applies a snapshot within the requested scope.
func (s *Server) handleRecallSnapshot(w http.ResponseWriter, r *http.Request) {
	var req recallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	scope := mixer.FullScope()
	if req.Scope != nil {
		scope = *req.Scope
	}

	applied, err := s.manager.RecallSnapshot(r.Context(), chi.URLParam(r, "id"), scope)
	if err != nil && applied == nil {
		s.writeMixerError(w, err)
		return
	}
	resp := applyResponse{Applied: len(applied), Changes: applied}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
