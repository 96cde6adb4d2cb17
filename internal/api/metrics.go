package api

import (
	"net/http"
	"runtime"
	"time"
)

// StatusResponse is the /api/v1/status body.
type StatusResponse struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Device        DeviceStatus   `json:"device"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DeviceStatus summarises the Homie device.
type DeviceStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Properties int    `json:"properties"`
}

// handleStatus returns process and device status as JSON. Time series live
// on /metrics; this is the human-friendly snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, http.StatusOK, StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Device: DeviceStatus{
			ID:         s.tree.ID(),
			Name:       s.tree.Name(),
			State:      s.tree.State(),
			Properties: len(s.tree.Values()),
		},
	})
}
