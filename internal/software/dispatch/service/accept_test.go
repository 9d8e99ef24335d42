package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/offer"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

func testPoint(lat, lng float64) geo.Point {
	p, err := geo.NewPoint(lat, lng, "")
	if err != nil {
		panic(err)
	}
	return p
}

// Every driver in the batch mashes accept at once; exactly one may win.
func TestAcceptOffer_AtMostOneWinner(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()

	pickup := testPoint(40.7128, -74.0060)
	e.addRide("ride-1", "cust-1", ride.VehicleEconomy, pickup, testPoint(40.73, -73.99))

	const n = 8
	expiresAt := time.Now().UTC().Add(time.Minute)
	for i := 0; i < n; i++ {
		driverID := fmt.Sprintf("drv-%d", i)
		e.addDriver(driverID, pickup, ride.VehicleEconomy, 4.5)
		e.addOffer(fmt.Sprintf("offer-%d", i), "ride-1", driverID, 1, expiresAt)
	}

	results := make([]ports.AcceptResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.svc.AcceptOffer(context.Background(), fmt.Sprintf("offer-%d", i), fmt.Sprintf("drv-%d", i))
			if err != nil {
				t.Errorf("accept offer-%d: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	winners := 0
	var winner ports.AcceptResult
	for _, res := range results {
		if res.Won() {
			winners++
			winner = res
		} else {
			assert.Equal(t, ports.AcceptLostRace, res.Outcome)
		}
	}
	require.Equal(t, 1, winners, "exactly one driver must win the accept race")

	// the ride is assigned to the winner
	r, err := e.svc.GetRide(context.Background(), "ride-1")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusAssigned, r.Status)
	require.NotNil(t, r.AssignedDriverID)
	assert.Equal(t, winner.DriverID, *r.AssignedDriverID)

	// one ACCEPTED offer, everything else settled as SUPERSEDED
	accepted, superseded := 0, 0
	for _, o := range e.offersForRide("ride-1") {
		switch o.Status {
		case offer.StatusAccepted:
			accepted++
		case offer.StatusSuperseded:
			superseded++
		default:
			t.Fatalf("offer %s left in unexpected status %s", o.ID, o.Status)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, n-1, superseded)

	// the winner is held, the losers stay available
	e.store.mu.Lock()
	assert.False(t, e.store.avail[winner.DriverID].IsAvailable)
	e.store.mu.Unlock()

	// the customer learned about the assignment
	assigned := e.registry.sentTo("cust-1", contracts.EventDriverAssigned)
	require.Len(t, assigned, 1)
}

func TestAcceptOffer_ExpiredWindow(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()

	pickup := testPoint(40.7128, -74.0060)
	e.addRide("ride-1", "cust-1", ride.VehicleEconomy, pickup, testPoint(40.73, -73.99))
	e.addDriver("drv-1", pickup, ride.VehicleEconomy, 4.5)
	e.addOffer("offer-1", "ride-1", "drv-1", 1, time.Now().UTC().Add(-time.Second))

	res, err := e.svc.AcceptOffer(context.Background(), "offer-1", "drv-1")
	require.NoError(t, err)
	assert.Equal(t, ports.AcceptOfferExpired, res.Outcome)
	assert.Equal(t, ride.StatusSearching, e.rideStatus("ride-1"))
}

func TestAcceptOffer_RideNoLongerSearching(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()

	pickup := testPoint(40.7128, -74.0060)
	r := e.addRide("ride-1", "cust-1", ride.VehicleEconomy, pickup, testPoint(40.73, -73.99))
	r.Status = ride.StatusCancelled
	e.addDriver("drv-1", pickup, ride.VehicleEconomy, 4.5)
	e.addOffer("offer-1", "ride-1", "drv-1", 1, time.Now().UTC().Add(time.Minute))

	res, err := e.svc.AcceptOffer(context.Background(), "offer-1", "drv-1")
	require.NoError(t, err)
	assert.Equal(t, ports.AcceptRideNotSearching, res.Outcome)
}

func TestAcceptOffer_WrongDriver(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()

	pickup := testPoint(40.7128, -74.0060)
	e.addRide("ride-1", "cust-1", ride.VehicleEconomy, pickup, testPoint(40.73, -73.99))
	e.addOffer("offer-1", "ride-1", "drv-1", 1, time.Now().UTC().Add(time.Minute))

	_, err := e.svc.AcceptOffer(context.Background(), "offer-1", "drv-other")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestAcceptOffer_UnknownOffer(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()

	_, err := e.svc.AcceptOffer(context.Background(), "no-such-offer", "drv-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRejectOffer_SettlesAndIsIdempotent(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()

	pickup := testPoint(40.7128, -74.0060)
	e.addRide("ride-1", "cust-1", ride.VehicleEconomy, pickup, testPoint(40.73, -73.99))
	e.addOffer("offer-1", "ride-1", "drv-1", 1, time.Now().UTC().Add(time.Minute))

	require.NoError(t, e.svc.RejectOffer(context.Background(), "offer-1", "drv-1", "too far"))
	assert.Equal(t, offer.StatusRejected, e.offerStatus("offer-1"))

	// a replayed reject is a no-op, not an error
	require.NoError(t, e.svc.RejectOffer(context.Background(), "offer-1", "drv-1", "too far"))
	assert.Equal(t, offer.StatusRejected, e.offerStatus("offer-1"))
}

func TestRejectOffer_WrongDriver(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()

	pickup := testPoint(40.7128, -74.0060)
	e.addRide("ride-1", "cust-1", ride.VehicleEconomy, pickup, testPoint(40.73, -73.99))
	e.addOffer("offer-1", "ride-1", "drv-1", 1, time.Now().UTC().Add(time.Minute))

	err := e.svc.RejectOffer(context.Background(), "offer-1", "drv-other", "")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

// A settled offer never re-enters the race: accepting after a rejection
// classifies instead of transitioning.
func TestAcceptOffer_AfterReject(t *testing.T) {
	e := newTestEngine(defaultTestSettings())
	defer e.cancel()

	pickup := testPoint(40.7128, -74.0060)
	e.addRide("ride-1", "cust-1", ride.VehicleEconomy, pickup, testPoint(40.73, -73.99))
	e.addDriver("drv-1", pickup, ride.VehicleEconomy, 4.5)
	e.addOffer("offer-1", "ride-1", "drv-1", 1, time.Now().UTC().Add(time.Minute))

	require.NoError(t, e.svc.RejectOffer(context.Background(), "offer-1", "drv-1", ""))

	res, err := e.svc.AcceptOffer(context.Background(), "offer-1", "drv-1")
	require.NoError(t, err)
	assert.Equal(t, ports.AcceptRideNotSearching, res.Outcome)
	assert.Equal(t, offer.StatusRejected, e.offerStatus("offer-1"))
	assert.Equal(t, ride.StatusSearching, e.rideStatus("ride-1"))
}
