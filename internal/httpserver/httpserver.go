// httpserver.go — the HTTP surface: POST /mcp, GET /ws, GET /health, and
// (on the optional metrics port) GET /metrics, all behind a single
// *mux.Router per port.
package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gasoline-mcp/browser-bridge/internal/cache"
	"github.com/gasoline-mcp/browser-bridge/internal/mcprpc"
	"github.com/gasoline-mcp/browser-bridge/internal/metrics"
	"github.com/gasoline-mcp/browser-bridge/internal/registry"
	"github.com/gasoline-mcp/browser-bridge/internal/transport"
)

// Version is the server version reported in /health and the MCP
// initialize handshake.
const Version = "1.0.0"

// Server assembles the primary HTTP surface: /mcp, /ws, /health.
type Server struct {
	Router *mux.Router

	rpc       *mcprpc.Server
	transport *transport.Server
	registry  *registry.Registry
	cache     *cache.Cache
	metrics   *metrics.Metrics
	logger    *zap.Logger
	startedAt time.Time
}

// New builds the primary router with all three routes registered.
func New(rpc *mcprpc.Server, ts *transport.Server, reg *registry.Registry, c *cache.Cache, m *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		Router:    mux.NewRouter(),
		rpc:       rpc,
		transport: ts,
		registry:  reg,
		cache:     c,
		metrics:   m,
		logger:    logger,
		startedAt: time.Now(),
	}

	s.Router.HandleFunc("/mcp", s.handleMCP).Methods(http.MethodPost)
	s.Router.HandleFunc("/ws", ts.ServeWS).Methods(http.MethodGet)
	s.Router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return s
}

// MetricsRouter builds the standalone router for the optional metrics
// port.
func MetricsRouter(m *metrics.Metrics) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// handleMCP implements POST /mcp: a single JSON-RPC 2.0 request per call.
// A request body that isn't even valid JSON, or that validates but
// carries no method, still goes through mcprpc.Server.Handle, which
// produces the -32600/-32700 error envelopes itself; this handler's own
// job is purely the HTTP framing (status code, content type, empty body
// for notifications).
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn("failed to read /mcp request body", zap.Error(err))
		writeJSONRPCTransportError(w)
		return
	}

	resp := s.rpc.Handle(r.Context(), body)
	w.Header().Set("Content-Type", "application/json")
	if resp == nil {
		// notifications/initialized: HTTP 200, empty body, no id echoed.
		w.WriteHeader(http.StatusOK)
		return
	}
	if isInvalidRequest(resp) {
		w.WriteHeader(http.StatusBadRequest)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = w.Write(resp)
}

// isInvalidRequest peeks the encoded response for the -32600 code: a
// malformed envelope (e.g. no method) gets HTTP 400. Other JSON-RPC errors
// (method not found, invalid params, internal) are still HTTP 200 per
// JSON-RPC-over-HTTP convention.
func isInvalidRequest(resp []byte) bool {
	var probe struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp, &probe); err != nil {
		return false
	}
	return probe.Error != nil && probe.Error.Code == mcprpc.CodeInvalidRequest
}

func writeJSONRPCTransportError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"invalid request body"}}`))
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	regStats := s.registry.Stats()
	cacheStats := s.cache.GetCacheStats()

	status := metrics.BuildHealthStatus(metrics.HealthInputs{
		StartedAt:         s.startedAt,
		Version:           Version,
		ActiveConnections: regStats.ActiveConnections,
		CachedTabs:        cacheStats.TabCount,
		MemoryUsageBytes:  s.cache.GetMemoryUsage(),
		CacheHitRate:      cacheStats.HitRate,
		ToolSnapshot:      s.metrics.Collect(),
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// Shutdown drains the registry (terminating extension connections) ahead
// of the HTTP server's own graceful shutdown, which cmd/browser-mcp-bridge
// drives via http.Server.Shutdown(ctx).
func (s *Server) Shutdown(ctx context.Context) {
	s.registry.Shutdown()
}
