package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/ports"
)

// Handler adapts HTTP requests to the dispatch and driver services.
type Handler struct {
	dispatch ports.DispatchService
	drivers  ports.DriverService
	logger   *logger.Logger
	auth     *jwt.Manager
	gateway  *websocket.Gateway
}

// NewHandler wires the HTTP surface.
func NewHandler(
	dispatch ports.DispatchService,
	drivers ports.DriverService,
	log *logger.Logger,
	auth *jwt.Manager,
	gateway *websocket.Gateway,
) *Handler {
	return &Handler{
		dispatch: dispatch,
		drivers:  drivers,
		logger:   log,
		auth:     auth,
		gateway:  gateway,
	}
}

// RegisterRoutes mounts all endpoints on the router.
func (handler *Handler) RegisterRoutes(r *mux.Router) {
	customerOnly := jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer)
	driverOnly := jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)
	anyUser := jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleDriver, user.RoleAdmin)
	adminOnly := jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin)

	r.HandleFunc("/rides", customerOnly(handler.handleCreateRide)).Methods(http.MethodPost)
	r.HandleFunc("/rides/{ride_id}/cancel", customerOnly(handler.handleCancelRide)).Methods(http.MethodPost)
	r.HandleFunc("/rides/{ride_id}", anyUser(handler.handleGetRide)).Methods(http.MethodGet)
	r.HandleFunc("/rides/{ride_id}/offers", adminOnly(handler.handleOfferHistory)).Methods(http.MethodGet)

	r.HandleFunc("/offers/{offer_id}/accept", driverOnly(handler.handleAcceptOffer)).Methods(http.MethodPost)
	r.HandleFunc("/offers/{offer_id}/reject", driverOnly(handler.handleRejectOffer)).Methods(http.MethodPost)

	r.HandleFunc("/drivers/{driver_id}/online", driverOnly(handler.handleDriverOnline)).Methods(http.MethodPost)
	r.HandleFunc("/drivers/{driver_id}/offline", driverOnly(handler.handleDriverOffline)).Methods(http.MethodPost)
	r.HandleFunc("/drivers/{driver_id}/location", driverOnly(handler.handleDriverLocation)).Methods(http.MethodPost)

	r.HandleFunc("/rides/{ride_id}/arrived", driverOnly(handler.handleArrived)).Methods(http.MethodPost)
	r.HandleFunc("/rides/{ride_id}/start", driverOnly(handler.handleStart)).Methods(http.MethodPost)
	r.HandleFunc("/rides/{ride_id}/complete", driverOnly(handler.handleComplete)).Methods(http.MethodPost)

	// WebSocket endpoints authenticate on the first frame
	r.HandleFunc("/ws/drivers/{driver_id}", handler.gateway.ConnectDriver).Methods(http.MethodGet)
	r.HandleFunc("/ws/customers/{customer_id}", handler.gateway.ConnectCustomer).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", handler.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/tokens", handler.handleCreateToken).Methods(http.MethodPost)
}

func (handler *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- token issuing (dev/testing surface) -----

type TokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

func (handler *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	tokenString, claims, err := handler.auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Failed to generate token", err)
		return
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": req.Role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      req.Role,
	})
}

// ----- general helpers -----

func (handler *Handler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *Handler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// decodeJSON strictly decodes a bounded JSON request body.
func (handler *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return errors.New("Content-Type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *Handler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
