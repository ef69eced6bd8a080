package metrics

import "time"

// PerformanceStats is the nested object of HealthStatus.
type PerformanceStats struct {
	RequestsPerSecond          float64 `json:"requests_per_second"`
	AverageResponseTimeMs      float64 `json:"average_response_time_ms"`
	CacheHitRate               float64 `json:"cache_hit_rate"`
	ErrorRate                  float64 `json:"error_rate"`
	ActiveWebsocketConnections int64   `json:"active_websocket_connections"`
}

// HealthStatus is the public JSON object served from GET /health.
type HealthStatus struct {
	Status            string           `json:"status"`
	Timestamp         time.Time        `json:"timestamp"`
	Version           string           `json:"version"`
	UptimeSeconds     float64          `json:"uptime_seconds"`
	ActiveConnections int64            `json:"active_connections"`
	CachedTabs        int              `json:"cached_tabs"`
	MemoryUsageMb     float64          `json:"memory_usage_mb"`
	PerformanceStats  PerformanceStats `json:"performance_stats"`
}

// HealthInputs collects the component snapshots BuildHealthStatus needs.
// Kept as a flat struct (rather than taking *registry.Registry etc.
// directly) so internal/metrics has no import-cycle-prone dependency on
// the components it reports on; internal/httpserver assembles this from
// the live registry/cache/dispatcher on every request.
type HealthInputs struct {
	StartedAt         time.Time
	Version           string
	ActiveConnections int64
	CachedTabs        int
	MemoryUsageBytes  int64
	CacheHitRate      float64
	ToolSnapshot      Snapshot
}

// BuildHealthStatus computes the derived performance_stats fields
// (requests_per_second, average_response_time_ms, error_rate) from the raw
// counters and assembles the full HealthStatus object. error_rate is the
// request handler's failed / total.
func BuildHealthStatus(in HealthInputs) HealthStatus {
	uptime := time.Since(in.StartedAt).Seconds()
	if uptime <= 0 {
		uptime = 0.000001
	}

	var rps, avgMs, errRate float64
	if in.ToolSnapshot.ObservedCount > 0 {
		avgMs = (in.ToolSnapshot.TotalSeconds / float64(in.ToolSnapshot.ObservedCount)) * 1000
	}
	if in.ToolSnapshot.TotalCalls > 0 {
		errRate = in.ToolSnapshot.TotalErrors / in.ToolSnapshot.TotalCalls
	}
	rps = in.ToolSnapshot.TotalCalls / uptime

	return HealthStatus{
		Status:            "ok",
		Timestamp:         time.Now(),
		Version:           in.Version,
		UptimeSeconds:     uptime,
		ActiveConnections: in.ActiveConnections,
		CachedTabs:        in.CachedTabs,
		MemoryUsageMb:     float64(in.MemoryUsageBytes) / (1024 * 1024),
		PerformanceStats: PerformanceStats{
			RequestsPerSecond:          rps,
			AverageResponseTimeMs:      avgMs,
			CacheHitRate:               in.CacheHitRate,
			ErrorRate:                  errRate,
			ActiveWebsocketConnections: in.ActiveConnections,
		},
	}
}
