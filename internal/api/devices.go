package api

import (
	"cmp"
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/board/catalog"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// connectRequest is the body of POST /devices.
type connectRequest struct {
	Model       string `json:"model"`
	Connection  string `json:"connection"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	MIDIChannel int    `json:"midi_channel,omitempty"`
}

// handleListDevices returns the connected devices.
//
// Query parameters:
//   - status: filter by connection status (connected, error, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.manager.Devices()
	if status := r.URL.Query().Get("status"); status != "" {
		devices = slices.DeleteFunc(devices, func(d mixer.DeviceInfo) bool {
			return string(d.Status) != status
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	devices := s.manager.Devices()
	i := slices.IndexFunc(devices, func(d mixer.DeviceInfo) bool { return d.ID == id })
	if i < 0 {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, devices[i])
}

// handleConnectDevice creates a board for a catalog model and connects it.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Model == "" || req.Connection == "" {
		writeBadRequest(w, "model and connection are required")
		return
	}
	if req.MIDIChannel < 0 || req.MIDIChannel > 15 {
		writeBadRequest(w, "midi_channel must be 0-15")
		return
	}

	b, err := catalog.Open(req.Model, board.Config{
		ID:             req.ID,
		Name:           req.Name,
		Connection:     req.Connection,
		MIDIChannel:    req.MIDIChannel,
		ConnectTimeout: s.connTimeout,
		QueueSize:      s.queueSize,
		Dial:           s.dial,
		Logger:         s.logger.With("device", cmp.Or(req.ID, req.Model)),
	})
	if err != nil {
		s.writeMixerError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.connTimeout)
	defer cancel()
	info, err := s.manager.ConnectDevice(ctx, b)
	if err != nil {
		s.writeMixerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// handleDisconnectDevice disconnects a device and drops its state.
func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.DisconnectDevice(r.Context(), id); err != nil {
		s.writeMixerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": mixer.StatusDisconnected})
}

// handleReconnectDevice reconnects a device after a connection error.
func (s *Server) handleReconnectDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), s.connTimeout)
	defer cancel()
	if err := s.manager.ReconnectDevice(ctx, id); err != nil {
		s.writeMixerError(w, err)
		return
	}
	s.handleGetDevice(w, r)
}

// handleGetDeviceState returns one device's state including meters.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	st, err := s.manager.State(chi.URLParam(r, "id"))
	if err != nil {
		s.writeMixerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
