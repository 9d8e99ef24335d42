package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

// Inbound driver frame envelope:
// { "type": "...", "data": { ... } }
type driverFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type locationFrame struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type statusFrame struct {
	Online      bool    `json:"online"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	VehicleType string  `json:"vehicle_type,omitempty"`
}

type offerResponseFrame struct {
	OfferID  string `json:"offer_id"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// driverReadLoop routes inbound driver frames until the connection closes.
func (g *Gateway) driverReadLoop(r *http.Request, s *session, driverID string) {
	// throttle marker for location pings
	var lastLocAt time.Time

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			g.logClose(r, err, "driver_id", driverID, s)
			return
		}

		var msg driverFrame
		if err := json.Unmarshal(payload, &msg); err != nil {
			g.writeError(s, "bad json")
			continue
		}

		switch msg.Type {
		case "location_update":
			g.handleLocation(r, s, driverID, msg.Data, &lastLocAt)

		case "driver_status":
			g.handleStatus(r, s, driverID, msg.Data)

		case "offer_response":
			g.handleOfferResponse(r, s, driverID, msg.Data)

		default:
			g.writeError(s, "unknown message type")
		}
	}
}

// handleLocation applies a location ping, dropping pings that arrive faster
// than once per second.
func (g *Gateway) handleLocation(r *http.Request, s *session, driverID string, data json.RawMessage, lastLocAt *time.Time) {
	var frame locationFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.writeError(s, "bad location payload")
		return
	}

	now := time.Now()
	if now.Sub(*lastLocAt) < time.Second {
		return
	}
	*lastLocAt = now

	loc, err := geo.NewPoint(frame.Latitude, frame.Longitude, "")
	if err != nil {
		g.writeError(s, "invalid coordinates")
		return
	}

	if err := g.drivers.UpdateLocation(r.Context(), driverID, loc); err != nil {
		g.logger.Error(r.Context(), "ws_location_update_failed", "Failed to apply location ping", err,
			map[string]any{"driver_id": driverID})
		g.writeError(s, "failed to update location")
	}
}

func (g *Gateway) handleStatus(r *http.Request, s *session, driverID string, data json.RawMessage) {
	var frame statusFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.writeError(s, "bad status payload")
		return
	}

	var err error
	if frame.Online {
		var loc geo.Point
		loc, err = geo.NewPoint(frame.Latitude, frame.Longitude, "")
		if err != nil {
			g.writeError(s, "invalid coordinates")
			return
		}

		vt := ride.VehicleEconomy
		if frame.VehicleType != "" {
			vt, err = ride.ParseVehicleType(frame.VehicleType)
			if err != nil {
				g.writeError(s, "invalid vehicle type")
				return
			}
		}
		err = g.drivers.GoOnline(r.Context(), driverID, loc, vt)
	} else {
		err = g.drivers.GoOffline(r.Context(), driverID)
	}
	if err != nil {
		g.logger.Error(r.Context(), "ws_driver_status_failed", "Failed to change driver status", err,
			map[string]any{"driver_id": driverID, "online": frame.Online})
		g.writeError(s, "failed to change status")
	}
}

// handleOfferResponse routes accept/reject through the arbitrator and pushes
// the typed outcome back so a losing driver sees why they lost.
func (g *Gateway) handleOfferResponse(r *http.Request, s *session, driverID string, data json.RawMessage) {
	var frame offerResponseFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.OfferID == "" {
		g.writeError(s, "bad offer response payload")
		return
	}

	if !frame.Accepted {
		if err := g.dispatch.RejectOffer(r.Context(), frame.OfferID, driverID, frame.Reason); err != nil && !errors.Is(err, ports.ErrNotFound) {
			g.logger.Error(r.Context(), "ws_offer_reject_failed", "Failed to reject offer", err,
				map[string]any{"driver_id": driverID, "offer_id": frame.OfferID})
			g.writeError(s, "failed to reject offer")
		}
		return
	}

	result, err := g.dispatch.AcceptOffer(r.Context(), frame.OfferID, driverID)
	if err != nil {
		g.logger.Error(r.Context(), "ws_offer_accept_failed", "Accept attempt failed", err,
			map[string]any{"driver_id": driverID, "offer_id": frame.OfferID})
		g.writeError(s, "failed to accept offer")
		return
	}

	body, err := json.Marshal(eventFrame{Type: "offer_result", Data: result})
	if err != nil {
		return
	}
	_ = s.write(body)
}

func (g *Gateway) writeError(s *session, msg string) {
	body, err := json.Marshal(map[string]string{"type": "error", "error": msg})
	if err != nil {
		return
	}
	_ = s.write(body)
}
