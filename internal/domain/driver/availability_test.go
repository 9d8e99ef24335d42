package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
)

func TestNewAvailability(t *testing.T) {
	a, err := NewAvailability("drv-1", ride.VehicleEconomy, 4.5)
	require.NoError(t, err)
	assert.False(t, a.IsOnline)
	assert.False(t, a.IsAvailable)

	_, err = NewAvailability("", ride.VehicleEconomy, 4.5)
	assert.ErrorIs(t, err, ErrDriverIDRequired)

	_, err = NewAvailability("drv-1", ride.VehicleType("BLIMP"), 4.5)
	assert.ErrorIs(t, err, ride.ErrInvalidVehicleType)

	_, err = NewAvailability("drv-1", ride.VehicleEconomy, 0.5)
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = NewAvailability("drv-1", ride.VehicleEconomy, 5.5)
	assert.ErrorIs(t, err, ErrInvalidRating)
}

func TestAvailability_HoldAndRelease(t *testing.T) {
	a, err := NewAvailability("drv-1", ride.VehicleEconomy, 4.5)
	require.NoError(t, err)
	loc, _ := geo.NewPoint(40.7128, -74.0060, "")

	a.GoOnline(loc)
	assert.True(t, a.IsAvailable)

	a.Hold()
	assert.True(t, a.IsOnline)
	assert.False(t, a.IsAvailable)

	a.Release()
	assert.True(t, a.IsAvailable)

	// releasing an offline driver must not resurrect them
	a.GoOffline()
	a.Release()
	assert.False(t, a.IsOnline)
	assert.False(t, a.IsAvailable)
}

func TestAvailability_IdleSince(t *testing.T) {
	a, err := NewAvailability("drv-1", ride.VehicleEconomy, 4.5)
	require.NoError(t, err)

	// not available yet: no idle time
	assert.Zero(t, a.IdleSince(time.Now().UTC()))

	loc, _ := geo.NewPoint(40.7128, -74.0060, "")
	a.GoOnline(loc)
	a.AvailableSince = time.Now().UTC().Add(-10 * time.Minute)

	idle := a.IdleSince(time.Now().UTC())
	assert.InDelta(t, 10*time.Minute, idle, float64(time.Second))

	// clocks can skew; never report negative idle
	a.AvailableSince = time.Now().UTC().Add(time.Minute)
	assert.Zero(t, a.IdleSince(time.Now().UTC()))
}
