package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callwave/signaling-relay/internal/auth"
	"github.com/callwave/signaling-relay/internal/config"
	"github.com/callwave/signaling-relay/internal/metrics"
	"github.com/callwave/signaling-relay/internal/origin"
	"github.com/callwave/signaling-relay/internal/ratelimit"
	"github.com/callwave/signaling-relay/internal/registry"
)

// Server is the WebSocket signaling endpoint. Each accepted connection gets a
// session, a writer goroutine, and a read loop feeding the router; the
// identity is resolved before the upgrade and bound to the session for its
// lifetime.
type Server struct {
	cfg      config.Config
	resolver auth.Resolver
	reg      *registry.Registry
	hub      *hub
	router   *router
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader

	clock ratelimit.Clock
}

func NewServer(cfg config.Config, reg *registry.Registry, resolver auth.Resolver, m *metrics.Metrics, logger *slog.Logger) *Server {
	h := newHub(cfg.MaxConnections)
	s := &Server{
		cfg:      cfg,
		resolver: resolver,
		reg:      reg,
		hub:      h,
		router:   newRouter(reg, h, m, logger, cfg.RequireJoinedRoom),
		metrics:  m,
		logger:   logger,
		clock:    ratelimit.RealClock{},
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.originAllowed,
	}
	return s
}

// Connections returns the number of live signaling connections.
func (s *Server) Connections() int {
	return s.hub.connections()
}

// originAllowed admits requests without an Origin header (non-browser
// clients) and checks browser origins against the configured allowlist, or
// same-host when no allowlist is set.
func (s *Server) originAllowed(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return true
	}
	normalized, originHost, ok := origin.Normalize(originHeader)
	if !ok {
		return false
	}
	return origin.IsAllowed(normalized, originHost, r.Host, s.cfg.AllowedOrigins)
}

// ServeWS handles GET /ws.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.resolver.IdentityFromRequest(r)
	if err != nil {
		s.metrics.Inc(metrics.DropReasonUnauthenticated)
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrInvalidUsername) {
			status = http.StatusBadRequest
		}
		writeJSONError(w, status, err.Error())
		return
	}

	if s.cfg.MaxConnections > 0 && s.hub.connections() >= s.cfg.MaxConnections {
		s.metrics.Inc(metrics.DropReasonTooManyConnections)
		writeJSONError(w, http.StatusServiceUnavailable, "too many connections")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error (including origin rejections).
		return
	}

	sess := newSession(identity, conn)
	if err := s.hub.add(sess); err != nil {
		s.metrics.Inc(metrics.DropReasonTooManyConnections)
		writeClose(conn, websocket.ClosePolicyViolation, "too many connections")
		_ = conn.Close()
		return
	}

	s.logger.Debug("signaling connection open", "conn", sess.id, "username", identity)
	go sess.writePump(s.cfg.WSPingInterval)
	s.readLoop(sess)
}

func (s *Server) readLoop(sess *session) {
	defer func() {
		s.router.handleDisconnect(sess)
		s.logger.Debug("signaling connection closed", "conn", sess.id, "username", sess.identity)
	}()

	conn := sess.conn
	conn.SetReadLimit(s.cfg.MaxSignalingMessageBytes)
	resetDeadline := func() {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	}
	resetDeadline()
	conn.SetPongHandler(func(string) error {
		resetDeadline()
		return nil
	})

	rate := int64(s.cfg.MaxSignalingMessagesPerSecond)
	limiter := ratelimit.NewTokenBucket(s.clock, rate, rate)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// Oversize frames already got a 1009 close frame from the
			// websocket library.
			if errors.Is(err, websocket.ErrReadLimit) {
				s.metrics.Inc(metrics.DropReasonBadMessage)
			}
			return
		}
		if msgType != websocket.TextMessage {
			s.metrics.Inc(metrics.DropReasonBadMessage)
			writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}
		resetDeadline()

		if !limiter.Allow(1) {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		ev, err := parseClientEvent(data)
		if err != nil {
			// Malformed events are rejected without tearing the connection
			// down; only transport-level faults end the session.
			s.metrics.Inc(metrics.DropReasonBadMessage)
			s.router.sendError(sess, errCodeBadMessage, err.Error())
			continue
		}

		s.router.handleEvent(sess, ev)
	}
}

// ServeCreateRoom handles POST /rooms: it allocates a fresh 8-character room
// code for the authenticated caller to share out-of-band.
func (s *Server) ServeCreateRoom(w http.ResponseWriter, r *http.Request) {
	if _, err := s.resolver.IdentityFromRequest(r); err != nil {
		s.metrics.Inc(metrics.DropReasonUnauthenticated)
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrInvalidUsername) {
			status = http.StatusBadRequest
		}
		writeJSONError(w, status, err.Error())
		return
	}

	code, err := s.reg.NewRoomCode()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "could not allocate room code")
		return
	}
	s.metrics.Inc(metrics.RoomCreated)
	s.logger.Info("room created", "room", code)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"room": code})
}

// RunJanitor periodically evicts rooms that have stayed empty past the
// configured TTL. It returns immediately when eviction is disabled and
// otherwise blocks until ctx is done.
func (s *Server) RunJanitor(ctx context.Context) {
	ttl := s.cfg.EmptyRoomTTL
	if ttl <= 0 {
		return
	}

	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := s.reg.Sweep(ttl)
			for _, room := range evicted {
				s.metrics.Inc(metrics.RoomEvicted)
				s.logger.Info("evicted empty room", "room", room)
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
