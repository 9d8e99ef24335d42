package ride

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusSearching, StatusAssigned, true},
		{StatusSearching, StatusCancelled, true},
		{StatusSearching, StatusNoDriversAvailable, true},
		{StatusSearching, StatusArrived, false},
		{StatusSearching, StatusCompleted, false},

		{StatusAssigned, StatusArrived, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusAssigned, StatusInProgress, false},
		{StatusAssigned, StatusNoDriversAvailable, false},

		{StatusArrived, StatusInProgress, true},
		{StatusArrived, StatusCancelled, true},
		{StatusArrived, StatusCompleted, false},

		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, false},

		{StatusCompleted, StatusSearching, false},
		{StatusCancelled, StatusAssigned, false},
		{StatusNoDriversAvailable, StatusAssigned, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusNoDriversAvailable.Terminal())

	assert.False(t, StatusSearching.Terminal())
	assert.False(t, StatusAssigned.Terminal())
	assert.False(t, StatusArrived.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("  searching ")
	assert.NoError(t, err)
	assert.Equal(t, StatusSearching, s)

	_, err = ParseStatus("TELEPORTING")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestParseVehicleType(t *testing.T) {
	vt, err := ParseVehicleType("premium")
	assert.NoError(t, err)
	assert.Equal(t, VehiclePremium, vt)

	_, err = ParseVehicleType("HOVERCRAFT")
	assert.ErrorIs(t, err, ErrInvalidVehicleType)
}
