package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/history"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handleGetHistory returns recorded parameter changes, newest first.
//
// Query parameters:
//   - device, channel, parameter: exact-match filters
//   - since: RFC3339 timestamp
//   - limit: 1-500, default 50
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is disabled")
		return
	}

	q := r.URL.Query()
	for _, key := range []string{"device", "channel", "parameter"} {
		if len(q.Get(key)) > maxQueryParamLen {
			writeBadRequest(w, key+" exceeds maximum length")
			return
		}
	}

	limit, err := parseHistoryLimit(q.Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	since, err := parseSinceParam(q.Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since timestamp")
		return
	}

	entries, err := s.history.Query(r.Context(), history.Filter{
		DeviceID:  q.Get("device"),
		ChannelID: q.Get("channel"),
		Parameter: q.Get("parameter"),
		Since:     since,
		Limit:     limit,
	})
	if err != nil {
		s.writeMixerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// parseHistoryLimit parses the limit parameter with default and maximum.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

// parseSinceParam parses the since parameter as RFC3339/RFC3339Nano.
func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
