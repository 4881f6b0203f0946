package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Devices       DeviceMetrics  `json:"devices"`
	MQTT          *LinkMetrics   `json:"mqtt,omitempty"`
	InfluxDB      *LinkMetrics   `json:"influxdb,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
	Observers        int `json:"observers"`
}

// LinkMetrics reports an optional outbound connection.
type LinkMetrics struct {
	Connected bool   `json:"connected"`
	Sent      uint64 `json:"sent,omitempty"`
	Received  uint64 `json:"received,omitempty"`
}

// messageCounter is implemented by links that count traffic.
type messageCounter interface {
	MessageCounts() (sent, received uint64)
}

func linkMetrics(link HealthChecker) *LinkMetrics {
	m := &LinkMetrics{Connected: link.IsConnected()}
	if mc, ok := link.(messageCounter); ok {
		m.Sent, m.Received = mc.MessageCounts()
	}
	return m
}

// DeviceMetrics contains connected device statistics.
type DeviceMetrics struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByModel  map[string]int `json:"by_model"`
}

// handleMetrics returns runtime, device and link metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.clientCount(),
			Observers:        s.broadcaster.Count(),
		},
	}

	devices := s.manager.Devices()
	metrics.Devices = DeviceMetrics{
		Total:    len(devices),
		ByStatus: make(map[string]int),
		ByModel:  make(map[string]int),
	}
	for _, d := range devices {
		metrics.Devices.ByStatus[string(d.Status)]++
		metrics.Devices.ByModel[d.Model]++
	}

	if s.mqtt != nil {
		metrics.MQTT = linkMetrics(s.mqtt)
	}
	if s.influx != nil {
		metrics.InfluxDB = linkMetrics(s.influx)
	}

	writeJSON(w, http.StatusOK, metrics)
}
