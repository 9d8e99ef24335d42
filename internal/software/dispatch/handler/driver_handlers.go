package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/dispatch/service"
)

type driverLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type driverOnlineRequest struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	VehicleType string  `json:"vehicle_type,omitempty"`
}

// driverFromPath verifies the path driver id matches the token subject.
func (handler *Handler) driverFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := handler.withReqID(r.Context(), r)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return "", false
	}
	if pathID := mux.Vars(r)["driver_id"]; pathID != "" && pathID != claims.Subject {
		handler.httpError(ctx, w, http.StatusForbidden, "driver_id does not match token subject", nil)
		return "", false
	}
	return claims.Subject, true
}

// ----- POST /drivers/{driver_id}/online -----

func (handler *Handler) handleDriverOnline(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	driverID, ok := handler.driverFromPath(w, r)
	if !ok {
		return
	}

	var req driverOnlineRequest
	if err := handler.decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid request body: "+err.Error(), err)
		return
	}

	loc, err := geo.NewPoint(req.Latitude, req.Longitude, "")
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid coordinates", err)
		return
	}

	vt := ride.VehicleEconomy
	if req.VehicleType != "" {
		vt, err = ride.ParseVehicleType(req.VehicleType)
		if err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "invalid vehicle type", err)
			return
		}
	}

	if err := handler.drivers.GoOnline(ctx, driverID, loc, vt); err != nil {
		handler.driverError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"driver_id": driverID,
		"online":    true,
	})
}

// ----- POST /drivers/{driver_id}/offline -----

func (handler *Handler) handleDriverOffline(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	driverID, ok := handler.driverFromPath(w, r)
	if !ok {
		return
	}

	if err := handler.drivers.GoOffline(ctx, driverID); err != nil {
		handler.driverError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"driver_id": driverID,
		"online":    false,
	})
}

// ----- POST /drivers/{driver_id}/location -----

func (handler *Handler) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	driverID, ok := handler.driverFromPath(w, r)
	if !ok {
		return
	}

	var req driverLocationRequest
	if err := handler.decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid request body: "+err.Error(), err)
		return
	}

	loc, err := geo.NewPoint(req.Latitude, req.Longitude, "")
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid coordinates", err)
		return
	}

	if err := handler.drivers.UpdateLocation(ctx, driverID, loc); err != nil {
		handler.driverError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- post-assignment lifecycle -----

func (handler *Handler) handleArrived(w http.ResponseWriter, r *http.Request) {
	handler.progress(w, r, handler.dispatch.MarkArrived, ride.StatusArrived)
}

func (handler *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	handler.progress(w, r, handler.dispatch.StartRide, ride.StatusInProgress)
}

func (handler *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	handler.progress(w, r, handler.dispatch.CompleteRide, ride.StatusCompleted)
}

func (handler *Handler) progress(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, rideID, driverID string) error, to ride.Status) {
	ctx := handler.withReqID(r.Context(), r)
	rideID := mux.Vars(r)["ride_id"]

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	if err := op(ctx, rideID, claims.Subject); err != nil {
		switch {
		case errors.Is(err, ports.ErrNotFound):
			handler.httpError(ctx, w, http.StatusNotFound, "ride not found", err)
		case errors.Is(err, service.ErrNotAssignedDriver):
			handler.httpError(ctx, w, http.StatusForbidden, "ride is assigned to another driver", err)
		case errors.Is(err, ride.ErrInvalidTransition):
			handler.httpError(ctx, w, http.StatusConflict, "ride is not in a state that allows this transition", err)
		default:
			handler.httpError(ctx, w, http.StatusInternalServerError, "failed to update ride", err)
		}
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{
		"ride_id": rideID,
		"status":  to.String(),
	})
}

// driverError maps driver service errors to HTTP statuses.
func (handler *Handler) driverError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, ports.ErrNotFound) {
		handler.httpError(ctx, w, http.StatusNotFound, "driver not registered", err)
		return
	}
	handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
}
