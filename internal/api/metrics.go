package api

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// decisionMetrics counts webhook decisions and provisioned accounts.
type decisionMetrics struct {
	authAllowed uint64
	authDenied  uint64
	aclAllowed  uint64
	aclDenied   uint64
	provisioned uint64
}

func (m *decisionMetrics) recordAuth(allowed bool) {
	if allowed {
		atomic.AddUint64(&m.authAllowed, 1)
	} else {
		atomic.AddUint64(&m.authDenied, 1)
	}
}

func (m *decisionMetrics) recordACL(allowed bool) {
	if allowed {
		atomic.AddUint64(&m.aclAllowed, 1)
	} else {
		atomic.AddUint64(&m.aclDenied, 1)
	}
}

func (m *decisionMetrics) recordProvision() {
	atomic.AddUint64(&m.provisioned, 1)
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Decisions     DecisionCounts  `json:"decisions"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DecisionCounts contains webhook decision counters.
type DecisionCounts struct {
	AuthAllowed uint64 `json:"auth_allowed"`
	AuthDenied  uint64 `json:"auth_denied"`
	ACLAllowed  uint64 `json:"acl_allowed"`
	ACLDenied   uint64 `json:"acl_denied"`
	Provisioned uint64 `json:"provisioned"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns system and decision metrics.
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
		Decisions: DecisionCounts{
			AuthAllowed: atomic.LoadUint64(&s.metrics.authAllowed),
			AuthDenied:  atomic.LoadUint64(&s.metrics.authDenied),
			ACLAllowed:  atomic.LoadUint64(&s.metrics.aclAllowed),
			ACLDenied:   atomic.LoadUint64(&s.metrics.aclDenied),
			Provisioned: atomic.LoadUint64(&s.metrics.provisioned),
		},
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
