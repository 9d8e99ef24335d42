package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

const (
	authDeadline  = 5 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	maxFrameBytes = 1 << 20 // 1 MiB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Gateway owns the WebSocket endpoints: upgrade, first-frame JWT auth,
// registry bookkeeping, and inbound driver frame routing.
type Gateway struct {
	logger   *logger.Logger
	jwtMgr   *jwt.Manager
	registry *Registry
	dispatch ports.DispatchService
	drivers  ports.DriverService
}

// NewGateway wires the WebSocket endpoints to the dispatch and driver services.
func NewGateway(log *logger.Logger, jwtMgr *jwt.Manager, registry *Registry, dispatch ports.DispatchService, drivers ports.DriverService) *Gateway {
	return &Gateway{
		logger:   log,
		jwtMgr:   jwtMgr,
		registry: registry,
		dispatch: dispatch,
		drivers:  drivers,
	}
}

// ConnectDriver handles /ws/drivers/{driver_id}.
func (g *Gateway) ConnectDriver(w http.ResponseWriter, r *http.Request) {
	s, userID, ok := g.authenticate(w, r, mux.Vars(r)["driver_id"], user.RoleDriver)
	if !ok {
		return
	}
	defer s.conn.Close()

	g.registry.add(userID, s)
	defer g.registry.remove(userID, s)

	// a reconnecting driver is seen again even before their first ping
	_ = g.drivers.Heartbeat(r.Context(), userID)

	g.logger.Info(r.Context(), "ws_connected", "Driver WebSocket connected",
		map[string]any{"driver_id": userID})

	g.startPingLoop(r, s, userID)
	g.driverReadLoop(r, s, userID)
}

// ConnectCustomer handles /ws/customers/{customer_id}. Customers only
// receive pushes; inbound frames beyond the auth handshake are ignored, the
// read loop exists to service pongs and detect disconnects.
func (g *Gateway) ConnectCustomer(w http.ResponseWriter, r *http.Request) {
	s, userID, ok := g.authenticate(w, r, mux.Vars(r)["customer_id"], user.RoleCustomer)
	if !ok {
		return
	}
	defer s.conn.Close()

	g.registry.add(userID, s)
	defer g.registry.remove(userID, s)

	g.logger.Info(r.Context(), "ws_connected", "Customer WebSocket connected",
		map[string]any{"customer_id": userID})

	g.startPingLoop(r, s, userID)

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
		if _, _, err := s.conn.ReadMessage(); err != nil {
			g.logClose(r, err, "customer_id", userID, s)
			return
		}
	}
}

// authenticate upgrades the request and performs the first-frame auth
// handshake. The path id, when present, must match the token subject.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request, pathID string, role user.Role) (*session, string, bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return nil, "", false
	}
	s := &session{conn: conn}

	conn.SetReadLimit(maxFrameBytes)
	if err := conn.SetReadDeadline(time.Now().Add(authDeadline)); err != nil {
		g.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		g.sendAuthError(s, "internal server error")
		conn.Close()
		return nil, "", false
	}

	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		g.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		g.sendAuthError(s, "authentication timeout: please send auth message within 5 seconds")
		conn.Close()
		return nil, "", false
	}

	if msgType != websocket.TextMessage {
		g.logger.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		g.sendAuthError(s, "auth message must be in text format")
		conn.Close()
		return nil, "", false
	}

	res, err := jwt.ValidateWSAuth(firstFrame, g.jwtMgr, role)
	if err != nil {
		g.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		g.sendAuthError(s, "authentication failed: invalid token")
		conn.Close()
		return nil, "", false
	}

	if pathID != "" && pathID != res.Claims.Subject {
		g.logger.Error(r.Context(), "ws_auth_failed", "Path ID does not match token subject", nil, map[string]any{
			"path_id":       pathID,
			"token_subject": res.Claims.Subject,
		})
		g.sendAuthError(s, "user ID mismatch")
		conn.Close()
		return nil, "", false
	}
	userID := res.Claims.Subject

	if err := g.sendAuthSuccess(s, userID); err != nil {
		g.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		conn.Close()
		return nil, "", false
	}

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	return s, userID, true
}

// startPingLoop keeps the connection alive; a failed ping closes the socket
// so the blocked reader exits.
func (g *Gateway) startPingLoop(r *http.Request, s *session, userID string) {
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := s.ping(); err != nil {
				_ = s.conn.Close()
				g.logger.Debug(r.Context(), "ws_ping_failed", "Failed to send ping",
					map[string]any{"user_id": userID, "error": err.Error()})
				return
			}
		}
	}()
}

func (g *Gateway) logClose(r *http.Request, err error, idKey, userID string, s *session) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		g.logger.Error(r.Context(), "ws_unexpected_close", "Connection closed unexpectedly", err,
			map[string]any{idKey: userID})
		s.writeClose(websocket.CloseInternalServerErr, "internal error")
		return
	}
	g.logger.Info(r.Context(), "ws_connection_closed", "Connection closed normally",
		map[string]any{idKey: userID})
	s.writeClose(websocket.CloseNormalClosure, "bye")
}

func (g *Gateway) sendAuthError(s *session, message string) error {
	body, err := json.Marshal(map[string]any{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	})
	if err != nil {
		return err
	}
	return s.write(body)
}

func (g *Gateway) sendAuthSuccess(s *session, userID string) error {
	body, err := json.Marshal(map[string]any{
		"type":      "auth_success",
		"message":   "Authentication successful",
		"success":   true,
		"user_id":   userID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.write(body)
}
