package service

import (
	"context"

	"ride-dispatch/internal/domain/ride"
)

// RecoverInFlight resumes the dispatch loop for every ride a previous
// process left SEARCHING. Each resumed loop reloads its exclusion set and
// batch number from storage; if the last window is still open the loop waits
// it out instead of issuing an overlapping batch.
func (service *dispatchService) RecoverInFlight(ctx context.Context) error {
	var searching []*ride.Ride
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		searching, err = service.rides.ListByStatus(txCtx, ride.StatusSearching)
		return err
	})
	if err != nil {
		return err
	}

	for _, r := range searching {
		go service.dispatchLoop(r.ID)
	}

	if len(searching) > 0 {
		service.logger.Info(ctx, "dispatch_recovered", "Resumed dispatch loops for in-flight rides", map[string]any{
			"rides": len(searching),
		})
	}
	return nil
}
