package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/ports"
)

type rejectOfferRequest struct {
	Reason string `json:"reason"`
}

// ----- POST /offers/{offer_id}/accept -----
//
// Losing the race is a normal outcome: the response is 200 with the typed
// outcome, not an error status. Only unknown offers and storage failures
// produce error statuses.
func (handler *Handler) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	offerID := mux.Vars(r)["offer_id"]

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	result, err := handler.dispatch.AcceptOffer(ctx, offerID, claims.Subject)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			handler.httpError(ctx, w, http.StatusNotFound, "offer not found", err)
			return
		}
		handler.httpError(ctx, w, http.StatusInternalServerError, "failed to process accept", err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, result)
}

// ----- POST /offers/{offer_id}/reject -----

func (handler *Handler) handleRejectOffer(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	offerID := mux.Vars(r)["offer_id"]

	var req rejectOfferRequest
	if r.ContentLength > 0 {
		if err := handler.decodeJSON(w, r, &req); err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "invalid request body: "+err.Error(), err)
			return
		}
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	if err := handler.dispatch.RejectOffer(ctx, offerID, claims.Subject, req.Reason); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			handler.httpError(ctx, w, http.StatusNotFound, "offer not found", err)
			return
		}
		handler.httpError(ctx, w, http.StatusInternalServerError, "failed to reject offer", err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{
		"offer_id": offerID,
		"status":   "REJECTED",
	})
}
