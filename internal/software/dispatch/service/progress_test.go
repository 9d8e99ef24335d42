package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// assignRide seeds an accepted ride: drv-1 assigned, held.
func assignRide(t *testing.T, e *testEngine) string {
	t.Helper()

	pickup := testPoint(40.7128, -74.0060)
	e.addDriver("drv-1", pickup, ride.VehicleEconomy, 4.5)
	e.addRide("ride-1", "cust-1", ride.VehicleEconomy, pickup, testPoint(40.73, -73.99))
	e.addOffer("offer-1", "ride-1", "drv-1", 1, time.Now().UTC().Add(time.Minute))

	res, err := e.svc.AcceptOffer(context.Background(), "offer-1", "drv-1")
	require.NoError(t, err)
	require.True(t, res.Won())
	return "ride-1"
}

func TestRideLifecycle_HappyPath(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()
	rideID := assignRide(t, e)

	require.NoError(t, e.svc.MarkArrived(context.Background(), rideID, "drv-1"))
	assert.Equal(t, ride.StatusArrived, e.rideStatus(rideID))

	require.NoError(t, e.svc.StartRide(context.Background(), rideID, "drv-1"))
	assert.Equal(t, ride.StatusInProgress, e.rideStatus(rideID))

	require.NoError(t, e.svc.CompleteRide(context.Background(), rideID, "drv-1"))
	assert.Equal(t, ride.StatusCompleted, e.rideStatus(rideID))

	// completion frees the driver for the next dispatch
	e.store.mu.Lock()
	available := e.store.avail["drv-1"].IsAvailable
	e.store.mu.Unlock()
	assert.True(t, available)

	// the customer saw every stage
	updates := e.registry.sentTo("cust-1", contracts.EventRideStatusUpdate)
	require.Len(t, updates, 3)
	statuses := make([]string, 0, 3)
	for _, u := range updates {
		statuses = append(statuses, u.Payload.(contracts.WSRideStatus).Status)
	}
	assert.Equal(t, []string{
		ride.StatusArrived.String(),
		ride.StatusInProgress.String(),
		ride.StatusCompleted.String(),
	}, statuses)
}

func TestProgress_OutOfOrderTransitionRejected(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()
	rideID := assignRide(t, e)

	// cannot start before arriving
	err := e.svc.StartRide(context.Background(), rideID, "drv-1")
	assert.ErrorIs(t, err, ride.ErrInvalidTransition)

	// cannot complete before starting
	err = e.svc.CompleteRide(context.Background(), rideID, "drv-1")
	assert.ErrorIs(t, err, ride.ErrInvalidTransition)

	assert.Equal(t, ride.StatusAssigned, e.rideStatus(rideID))
}

func TestProgress_OnlyAssignedDriverMayAdvance(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()
	rideID := assignRide(t, e)

	err := e.svc.MarkArrived(context.Background(), rideID, "drv-impostor")
	assert.ErrorIs(t, err, ErrNotAssignedDriver)
	assert.Equal(t, ride.StatusAssigned, e.rideStatus(rideID))
}

func TestProgress_UnknownRide(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()

	err := e.svc.MarkArrived(context.Background(), "no-such-ride", "drv-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestGetRide(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()

	e.addRide("ride-1", "cust-1", ride.VehicleEconomy, testPoint(40.7, -74.0), testPoint(40.75, -73.98))

	r, err := e.svc.GetRide(context.Background(), "ride-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", r.CustomerID)
	assert.Equal(t, ride.StatusSearching, r.Status)

	_, err = e.svc.GetRide(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
