// transport.go — the websocket receiver half of connection accept: upgrades
// GET /ws, inserts a Connection into the registry, and runs the inbound
// frame-handling loop that feeds the pending-request table and the cache.
package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gasoline-mcp/browser-bridge/internal/cache"
	"github.com/gasoline-mcp/browser-bridge/internal/codec"
	"github.com/gasoline-mcp/browser-bridge/internal/pending"
	"github.com/gasoline-mcp/browser-bridge/internal/registry"
)

const (
	readLimitBytes = 1 << 20
	pongWait       = 60 * time.Second
)

// Server upgrades incoming connections and runs their receive loop.
type Server struct {
	Registry *registry.Registry
	Pending  *pending.Table
	Cache    *cache.Cache
	Logger   *zap.Logger

	// MaxConnections caps concurrently open extension connections; 0 means
	// no cap.
	MaxConnections int

	upgrader websocket.Upgrader
}

// New creates a transport Server wired to the given components.
func New(reg *registry.Registry, pend *pending.Table, c *cache.Cache, logger *zap.Logger) *Server {
	return &Server{
		Registry: reg,
		Pending:  pend,
		Cache:    c,
		Logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The extension runs outside the page's origin; the server trusts
			// the local socket rather than the browser's Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the HTTP request to a websocket and registers the
// resulting connection, running its receive loop in a new goroutine.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if s.MaxConnections > 0 && s.Registry.Stats().ActiveConnections >= int64(s.MaxConnections) {
		s.Logger.Warn("connection cap reached, refusing upgrade", zap.Int("max_connections", s.MaxConnections))
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	entry := s.Registry.Accept(conn, r.RemoteAddr)
	s.Logger.Info("connection accepted", zap.String("connection_id", string(entry.ID)), zap.String("remote_addr", r.RemoteAddr))

	conn.SetReadLimit(readLimitBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(payload string) error {
		s.Registry.Touch(entry.ID)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(5*time.Second))
	})

	go s.readLoop(entry.ID, conn)
}

// readLoop is the per-connection receiver task: it consumes frames until
// the socket closes, errors, or is reaped, then removes the connection from
// the registry.
func (s *Server) readLoop(id registry.ConnectionID, conn *websocket.Conn) {
	defer func() {
		s.Registry.RemoveConnection(id)
		s.Logger.Info("connection removed", zap.String("connection_id", string(id)))
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.Logger.Warn("websocket read error", zap.String("connection_id", string(id)), zap.Error(err))
			}
			return
		}

		// Any inbound frame counts as liveness, not just ping control frames.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		s.Registry.Touch(id)
		s.Registry.RecordReceived()

		switch messageType {
		case websocket.BinaryMessage:
			s.Logger.Debug("ignoring binary frame", zap.String("connection_id", string(id)))
			continue
		case websocket.CloseMessage:
			return
		}

		if !s.handleFrame(id, data) {
			s.Registry.RecordConnectionError()
			return
		}
	}
}

// handleFrame decodes and dispatches one text frame. It returns false when
// the frame failed both strict and lenient decoding, signalling the caller
// to terminate the connection.
func (s *Server) handleFrame(id registry.ConnectionID, data []byte) bool {
	parsed, err := codec.ParseFrame(data)
	if err != nil {
		s.Logger.Warn("invalid frame, terminating connection", zap.String("connection_id", string(id)), zap.Error(err))
		return false
	}

	if parsed.Envelope != nil {
		s.dispatchEnvelope(id, parsed.Envelope)
		return true
	}

	// Lenient fallback: known-but-unmodeled shapes are handled defensively;
	// genuinely unknown types are logged at debug and ignored.
	typ, _ := codec.LenientType(parsed.Lenient)
	switch typ {
	case codec.TypeNotification, codec.TypeConnection:
		if tabID, ok := codec.LenientTabID(parsed.Lenient); ok {
			s.Registry.BindTab(id, tabID)
		}
	case codec.TypeHeartbeat, codec.TypeResponse:
		// already touched; nothing further to do without a typed payload.
	default:
		s.Logger.Debug("unknown lenient frame type", zap.String("connection_id", string(id)), zap.String("type", typ))
	}
	return true
}

func (s *Server) dispatchEnvelope(id registry.ConnectionID, env *codec.Envelope) {
	switch env.Type {
	case codec.TypeResponse:
		s.handleResponse(env)
	case codec.TypeNotification:
		s.handleNotification(id, env)
	case codec.TypeHeartbeat:
		// liveness already touched by the caller.
	case codec.TypeRequest:
		s.Logger.Warn("unexpected request from extension connection", zap.String("connection_id", string(id)), zap.String("action", env.Action))
	default:
		s.Logger.Debug("unhandled envelope type", zap.String("type", env.Type))
	}
}

// handleResponse delivers a response envelope into the pending-request
// table.
func (s *Server) handleResponse(env *codec.Envelope) {
	if env.RequestID == "" || env.Result == nil {
		return
	}
	if env.Result.Err != nil {
		s.Pending.Deliver(env.RequestID, pending.Result{ExtensionErr: *env.Result.Err})
		return
	}
	var resp codec.BrowserResponse
	if err := json.Unmarshal(env.Result.Ok, &resp); err != nil {
		s.Logger.Warn("failed to decode response payload", zap.String("request_id", env.RequestID), zap.Error(err))
		return
	}
	s.Pending.Deliver(env.RequestID, pending.Result{Response: &resp})
}

// handleNotification drives the binding state machine: connection_established
// binds the tab, connection_lost clears it when it matches, console_message
// and network_request are appended to the cache, tab_removed evicts the
// tab's cached data, and other events are ignored.
func (s *Server) handleNotification(id registry.ConnectionID, env *codec.Envelope) {
	ev := env.Event
	if ev == nil {
		return
	}

	switch ev.Type {
	case codec.EventConnectionEstablished:
		if ev.TabID != nil {
			s.Registry.BindTab(id, *ev.TabID)
		}
		return
	case codec.EventConnectionLost:
		if ev.TabID != nil {
			s.Registry.UnbindTab(id, *ev.TabID)
		}
		return
	}

	switch ev.Type {
	case codec.EventConsoleMessage:
		var payload struct {
			TabID   uint32               `json:"tab_id"`
			Message codec.ConsoleMessage `json:"message"`
		}
		if err := json.Unmarshal(ev.Raw, &payload); err == nil && payload.TabID != 0 {
			s.Cache.AddConsoleMessage(payload.TabID, payload.Message)
		}
	case codec.EventNetworkRequest:
		var payload struct {
			TabID   uint32                `json:"tab_id"`
			Request codec.NetworkRequest `json:"request"`
		}
		if err := json.Unmarshal(ev.Raw, &payload); err == nil && payload.TabID != 0 {
			s.Cache.AddNetworkRequest(payload.TabID, payload.Request)
		}
	case codec.EventTabRemoved:
		if ev.TabID != nil {
			s.Cache.Remove(*ev.TabID)
		}
	default:
		// tab_created/updated, page_loaded: no cache effect beyond what the
		// next tool call's slow path already refreshes.
	}
}
