package api

import (
	"cmp"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.withRequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverPanics)
	r.Use(s.cors)
	r.Use(s.limitBody)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleConnectDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleDisconnectDevice)
				r.Post("/reconnect", s.handleReconnectDevice)
				r.Get("/state", s.handleGetDeviceState)
			})
		})

		r.Route("/mixer", func(r chi.Router) {
			r.Get("/state", s.handleGetState)
			r.Post("/parameters", s.handleApplyParameters)

			r.Route("/channels", func(r chi.Router) {
				r.Get("/", s.handleListChannels)

				// {key} is a bare channel id or "device:channel".
				r.Route("/{key}", func(r chi.Router) {
					r.Get("/", s.handleGetChannel)
					r.Post("/fader", s.handleSetFader)
					r.Post("/mute", s.handleSetMute)
					r.Post("/solo", s.handleSetSolo)
					r.Post("/pan", s.handleSetPan)
					r.Post("/parameter", s.handleSetParameter)
				})
			})
		})

		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", s.handleListScenes)
			r.Post("/{number}/recall", s.handleRecallScene)
			r.Post("/{number}/store", s.handleStoreScene)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", s.handleListSnapshots)
			r.Post("/", s.handleCaptureSnapshot)
			r.Get("/{id}", s.handleGetSnapshot)
			r.Delete("/{id}", s.handleDeleteSnapshot)
			r.Post("/{id}/recall", s.handleRecallSnapshot)
		})

		r.Get("/meters", s.handleGetMeters)
		r.Get("/history", s.handleGetHistory)

		r.Get(cmp.Or(s.wsCfg.Path, "/ws"), s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"devices":   len(s.manager.Devices()),
		"observers": s.broadcaster.Count(),
		"time":      time.Now().UTC().Format(time.RFC3339),
	})
}
