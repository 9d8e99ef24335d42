package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/dispatch/service"
)

// --- Request DTOs (HTTP boundary) ---

type createRideRequest struct {
	PickupLatitude   float64 `json:"pickup_latitude"`
	PickupLongitude  float64 `json:"pickup_longitude"`
	PickupAddress    string  `json:"pickup_address"`
	DropoffLatitude  float64 `json:"dropoff_latitude"`
	DropoffLongitude float64 `json:"dropoff_longitude"`
	DropoffAddress   string  `json:"dropoff_address"`
	VehicleType      string  `json:"vehicle_type"` // ECONOMY | PREMIUM | XL
}

type cancelRideRequest struct {
	Reason string `json:"reason"`
}

// ----- POST /rides -----

func (handler *Handler) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req createRideRequest
	if err := handler.decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid request body: "+err.Error(), err)
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	vt, err := ride.ParseVehicleType(req.VehicleType)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "vehicle_type must be one of: ECONOMY, PREMIUM, XL", err)
		return
	}

	pickup, err := geo.NewPoint(req.PickupLatitude, req.PickupLongitude, strings.TrimSpace(req.PickupAddress))
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid pickup coordinates", err)
		return
	}
	dropoff, err := geo.NewPoint(req.DropoffLatitude, req.DropoffLongitude, strings.TrimSpace(req.DropoffAddress))
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid dropoff coordinates", err)
		return
	}

	result, err := handler.dispatch.CreateRide(ctx, ports.CreateRideInput{
		CustomerID:  claims.Subject,
		Pickup:      pickup,
		Dropoff:     dropoff,
		VehicleType: vt,
	})
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "failed to create ride", err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusCreated, result)
}

// ----- POST /rides/{ride_id}/cancel -----

func (handler *Handler) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	rideID := mux.Vars(r)["ride_id"]

	var req cancelRideRequest
	if err := handler.decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid request body: "+err.Error(), err)
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	// only the ride's customer may cancel it
	current, err := handler.dispatch.GetRide(ctx, rideID)
	if err != nil {
		handler.rideError(ctx, w, err)
		return
	}
	if current.CustomerID != claims.Subject {
		handler.httpError(ctx, w, http.StatusForbidden, "ride belongs to another customer", nil)
		return
	}

	result, err := handler.dispatch.CancelRide(ctx, rideID, "customer:"+claims.Subject, strings.TrimSpace(req.Reason))
	if err != nil {
		if errors.Is(err, service.ErrRideNotCancellable) {
			handler.httpError(ctx, w, http.StatusConflict, "ride can no longer be cancelled", err)
			return
		}
		handler.rideError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, result)
}

// ----- GET /rides/{ride_id} -----

type rideResponse struct {
	RideID             string  `json:"ride_id"`
	RideNumber         string  `json:"ride_number"`
	Status             string  `json:"status"`
	VehicleType        string  `json:"vehicle_type"`
	CustomerID         string  `json:"customer_id"`
	AssignedDriverID   string  `json:"assigned_driver_id,omitempty"`
	EstimatedFare      float64 `json:"estimated_fare"`
	CreatedAt          string  `json:"created_at"`
	AssignedAt         string  `json:"assigned_at,omitempty"`
	CompletedAt        string  `json:"completed_at,omitempty"`
	CancelledAt        string  `json:"cancelled_at,omitempty"`
	CancellationReason string  `json:"cancellation_reason,omitempty"`
}

func (handler *Handler) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	rideID := mux.Vars(r)["ride_id"]

	current, err := handler.dispatch.GetRide(ctx, rideID)
	if err != nil {
		handler.rideError(ctx, w, err)
		return
	}

	resp := rideResponse{
		RideID:        current.ID,
		RideNumber:    current.RideNumber,
		Status:        current.Status.String(),
		VehicleType:   current.VehicleType.String(),
		CustomerID:    current.CustomerID,
		EstimatedFare: current.EstimatedFare,
		CreatedAt:     current.CreatedAt.Format(time.RFC3339),
	}
	if current.AssignedDriverID != nil {
		resp.AssignedDriverID = *current.AssignedDriverID
	}
	if current.AssignedAt != nil {
		resp.AssignedAt = current.AssignedAt.Format(time.RFC3339)
	}
	if current.CompletedAt != nil {
		resp.CompletedAt = current.CompletedAt.Format(time.RFC3339)
	}
	if current.CancelledAt != nil {
		resp.CancelledAt = current.CancelledAt.Format(time.RFC3339)
	}
	if current.CancellationReason != nil {
		resp.CancellationReason = *current.CancellationReason
	}

	handler.jsonResponse(ctx, w, http.StatusOK, resp)
}

// ----- GET /rides/{ride_id}/offers -----

type offerHistoryEntry struct {
	OfferID     string `json:"offer_id"`
	DriverID    string `json:"driver_id"`
	BatchNumber int    `json:"batch_number"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	ExpiresAt   string `json:"expires_at"`
	RespondedAt string `json:"responded_at,omitempty"`
}

func (handler *Handler) handleOfferHistory(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	rideID := mux.Vars(r)["ride_id"]

	history, err := handler.dispatch.GetOfferHistory(ctx, rideID)
	if err != nil {
		handler.rideError(ctx, w, err)
		return
	}

	entries := make([]offerHistoryEntry, 0, len(history))
	for _, o := range history {
		e := offerHistoryEntry{
			OfferID:     o.ID,
			DriverID:    o.DriverID,
			BatchNumber: o.BatchNumber,
			Status:      o.Status.String(),
			CreatedAt:   o.CreatedAt.Format(time.RFC3339),
			ExpiresAt:   o.ExpiresAt.Format(time.RFC3339),
		}
		if o.RespondedAt != nil {
			e.RespondedAt = o.RespondedAt.Format(time.RFC3339)
		}
		entries = append(entries, e)
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"ride_id": rideID,
		"offers":  entries,
	})
}

// rideError maps repository errors to HTTP statuses.
func (handler *Handler) rideError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, ports.ErrNotFound) {
		handler.httpError(ctx, w, http.StatusNotFound, "ride not found", err)
		return
	}
	handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
}
