package ride

import (
	"errors"
	"strings"
)

// Status is a ride status as stored in the `rides` table.
type Status string

const (
	StatusSearching          Status = "SEARCHING"
	StatusAssigned           Status = "ASSIGNED"
	StatusArrived            Status = "ARRIVED"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusCompleted          Status = "COMPLETED"
	StatusCancelled          Status = "CANCELLED"
	StatusNoDriversAvailable Status = "NO_DRIVERS_AVAILABLE"
)

var ErrInvalidStatus = errors.New("invalid ride status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed ride status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusSearching, StatusAssigned, StatusArrived, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoDriversAvailable:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusSearching:
		return next == StatusAssigned || next == StatusCancelled || next == StatusNoDriversAvailable

	case StatusAssigned:
		return next == StatusArrived || next == StatusCancelled

	case StatusArrived:
		return next == StatusInProgress || next == StatusCancelled

	case StatusInProgress:
		return next == StatusCompleted

	case StatusCompleted, StatusCancelled, StatusNoDriversAvailable:
		return false

	default:
		return false
	}
}

// Terminal indicates if the status is in a terminal state.
func (status Status) Terminal() bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoDriversAvailable:
		return true
	default:
		return false
	}
}

// RequiresDriver reports whether a ride in this status must carry an assigned driver.
func (status Status) RequiresDriver() bool {
	switch status {
	case StatusAssigned, StatusArrived, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}
