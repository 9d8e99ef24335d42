package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoint_Bounds(t *testing.T) {
	_, err := NewPoint(90.1, 0, "")
	assert.ErrorIs(t, err, ErrLatitudeOutOfRange)

	_, err = NewPoint(-90.1, 0, "")
	assert.ErrorIs(t, err, ErrLatitudeOutOfRange)

	_, err = NewPoint(0, 180.1, "")
	assert.ErrorIs(t, err, ErrLongitudeOutOfRange)

	_, err = NewPoint(0, -180.1, "")
	assert.ErrorIs(t, err, ErrLongitudeOutOfRange)

	p, err := NewPoint(40.7128, -74.0060, "  downtown  ")
	require.NoError(t, err)
	assert.Equal(t, "downtown", p.Address)
}

func TestHaversineKM(t *testing.T) {
	// NYC to LA is roughly 3936 km
	nyc, _ := NewPoint(40.7128, -74.0060, "")
	la, _ := NewPoint(34.0522, -118.2437, "")
	assert.InDelta(t, 3936, HaversineKM(nyc, la), 20)

	// symmetric, and zero for identical points
	assert.Equal(t, HaversineKM(nyc, la), HaversineKM(la, nyc))
	assert.Zero(t, HaversineKM(nyc, nyc))
}

func TestEstimateDurationMinutes(t *testing.T) {
	assert.Equal(t, 1, EstimateDurationMinutes(0), "floor at one minute")
	assert.Equal(t, 1, EstimateDurationMinutes(0.2))
	// 21 km at 21 km/h is exactly an hour
	assert.Equal(t, 60, EstimateDurationMinutes(21))
}
