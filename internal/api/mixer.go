package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-mixer/internal/broadcast"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// maxBatchSize bounds the changes accepted in one request.
const maxBatchSize = 512

// valueRequest is the body of the per-parameter shorthand endpoints.
type valueRequest struct {
	Value any `json:"value"`
}

// parameterRequest is the body of POST /mixer/channels/{key}/parameter.
type parameterRequest struct {
	Parameter string `json:"parameter"`
	Value     any    `json:"value"`
}

// batchRequest is the body of POST /mixer/parameters.
type batchRequest struct {
	Changes []mixer.ParameterChange `json:"changes"`
}

// applyResponse reports the changes a write produced. Error is set when
// the state was updated but a device rejected the write.
type applyResponse struct {
	Applied int                     `json:"applied"`
	Changes []mixer.ParameterChange `json:"changes"`
	Error   string                  `json:"error,omitempty"`
}

// channelView is a channel together with the device it belongs to.
type channelView struct {
	DeviceID string `json:"device_id"`
	*mixer.Channel
}

// handleGetState returns the state of every device.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	states := s.manager.States()
	writeJSON(w, http.StatusOK, map[string]any{"devices": states, "count": len(states)})
}

// handleListChannels returns every channel of every device.
//
// Query parameters:
//   - device: restrict to one device
//   - type: restrict to one channel type (input, aux, ...)
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")
	chType := mixer.ChannelType(r.URL.Query().Get("type"))

	var channels []channelView
	for _, st := range s.manager.States() {
		if deviceID != "" && st.Device.ID != deviceID {
			continue
		}
		for _, id := range st.ChannelIDs() {
			ch := st.Channels[id]
			if chType != "" && ch.Type != chType {
				continue
			}
			channels = append(channels, channelView{DeviceID: st.Device.ID, Channel: ch})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels, "count": len(channels)})
}

// handleGetChannel returns one channel.
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.manager.Channel(chi.URLParam(r, "key"))
	if err != nil {
		s.writeMixerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleSetFader(w http.ResponseWriter, r *http.Request) {
	s.setShorthand(w, r, "fader")
}

func (s *Server) handleSetMute(w http.ResponseWriter, r *http.Request) {
	s.setShorthand(w, r, "mute")
}

func (s *Server) handleSetSolo(w http.ResponseWriter, r *http.Request) {
	s.setShorthand(w, r, "solo")
}

func (s *Server) handleSetPan(w http.ResponseWriter, r *http.Request) {
	s.setShorthand(w, r, "pan")
}

// setShorthand applies {"value": v} to one fixed parameter of a channel.
func (s *Server) setShorthand(w http.ResponseWriter, r *http.Request, parameter string) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.apply(w, r, []mixer.ParameterChange{{
		ChannelID: chi.URLParam(r, "key"),
		Parameter: parameter,
		Value:     req.Value,
	}})
}

// handleSetParameter applies any parameter path to one channel.
func (s *Server) handleSetParameter(w http.ResponseWriter, r *http.Request) {
	var req parameterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Parameter == "" {
		writeBadRequest(w, "parameter is required")
		return
	}
	s.apply(w, r, []mixer.ParameterChange{{
		ChannelID: chi.URLParam(r, "key"),
		Parameter: req.Parameter,
		Value:     req.Value,
	}})
}

// handleApplyParameters applies a batch atomically: one invalid change
// rejects the whole batch.
func (s *Server) handleApplyParameters(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Changes) == 0 {
		writeBadRequest(w, "changes are required")
		return
	}
	if len(req.Changes) > maxBatchSize {
		writeBadRequest(w, "too many changes")
		return
	}
	s.apply(w, r, req.Changes)
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request, changes []mixer.ParameterChange) {
	now := time.Now().UTC()
	for i := range changes {
		changes[i].Source = mixer.SourceAPI
		changes[i].Timestamp = now
	}

	applied, err := s.manager.ApplyBatch(r.Context(), changes)
	if err != nil && applied == nil {
		s.writeMixerError(w, err)
		return
	}

	resp := applyResponse{Applied: len(applied), Changes: applied}
	if err != nil {
		s.logger.Warn("parameter dispatch failed", "error", err)
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetMeters returns the latest meter levels keyed "device:channel".
func (s *Server) handleGetMeters(w http.ResponseWriter, _ *http.Request) {
	levels := make(map[string]float64)
	for _, st := range s.manager.States() {
		for chID, level := range st.Meters {
			levels[broadcast.MeterKey(st.Device.ID, chID)] = level
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"levels": levels})
}
