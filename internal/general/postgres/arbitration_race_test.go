// Concurrency tests for the accept arbitration against a real Postgres.
// Run with -race and DISPATCH_TEST_DSN pointing at a scratch database.
package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/offer"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DISPATCH_TEST_DSN")
	if dsn == "" {
		t.Skip("DISPATCH_TEST_DSN not set; skipping DB-backed race tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "0001_init.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := pool.Exec(ctx, "TRUNCATE TABLE ride_events, ride_offers, rides, driver_availability"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return pool
}

func seedSearchingRide(t *testing.T, uow ports.UnitOfWork) *ride.Ride {
	t.Helper()

	pickup, _ := geo.NewPoint(40.7128, -74.0060, "downtown")
	dropoff, _ := geo.NewPoint(40.7484, -73.9857, "midtown")
	r, err := ride.NewRide(uuid.NewString(), fmt.Sprintf("RIDE_RACE_%d", time.Now().UnixNano()),
		uuid.NewString(), ride.VehicleEconomy, pickup, dropoff, 2500)
	if err != nil {
		t.Fatalf("new ride: %v", err)
	}

	rides := NewRideRepo()
	err = uow.WithinTx(context.Background(), func(txCtx context.Context) error {
		return rides.Create(txCtx, r)
	})
	if err != nil {
		t.Fatalf("insert ride: %v", err)
	}
	return r
}

func TestAcceptPending_AtMostOneWinner(t *testing.T) {
	pool := setupTestPool(t)
	uow := NewUnitOfWork(pool)
	offers := NewOfferRepo()

	r := seedSearchingRide(t, uow)

	const n = 12
	expiresAt := time.Now().UTC().Add(time.Minute)
	batch := make([]*offer.Offer, 0, n)
	for i := 0; i < n; i++ {
		o, err := offer.NewOffer(uuid.NewString(), r.ID, uuid.NewString(), 1, expiresAt)
		if err != nil {
			t.Fatalf("new offer: %v", err)
		}
		batch = append(batch, o)
	}
	err := uow.WithinTx(context.Background(), func(txCtx context.Context) error {
		return offers.CreateBatch(txCtx, batch)
	})
	if err != nil {
		t.Fatalf("insert offers: %v", err)
	}

	// every driver accepts at once; the conditional update arbitrates
	wins := make([]bool, n)
	var wg sync.WaitGroup
	for i, o := range batch {
		wg.Add(1)
		go func(i int, o *offer.Offer) {
			defer wg.Done()
			now := time.Now().UTC()
			err := uow.WithinTx(context.Background(), func(txCtx context.Context) error {
				won, err := offers.AcceptPending(txCtx, o.ID, o.DriverID, now)
				if err != nil {
					return err
				}
				if !won {
					return nil
				}
				wins[i] = true
				if _, err := offers.SupersedePending(txCtx, o.RideID, o.ID, now); err != nil {
					return err
				}
				assigned, err := NewRideRepo().AssignDriver(txCtx, o.RideID, o.DriverID, now)
				if err != nil {
					return err
				}
				if !assigned {
					t.Errorf("winning accept could not assign ride %s", o.RideID)
				}
				return nil
			})
			if err != nil {
				t.Errorf("accept tx: %v", err)
			}
		}(i, o)
	}
	wg.Wait()

	winners := 0
	for _, won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}

	// everything else settled; nothing PENDING survives
	var pending, accepted int
	err = pool.QueryRow(context.Background(),
		`SELECT
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'ACCEPTED')
		 FROM ride_offers WHERE ride_id = $1`, r.ID).Scan(&pending, &accepted)
	if err != nil {
		t.Fatalf("count offers: %v", err)
	}
	if pending != 0 || accepted != 1 {
		t.Fatalf("want 0 pending / 1 accepted, got %d / %d", pending, accepted)
	}

	var status string
	if err := pool.QueryRow(context.Background(), `SELECT status FROM rides WHERE id = $1`, r.ID).Scan(&status); err != nil {
		t.Fatalf("read ride: %v", err)
	}
	if status != string(ride.StatusAssigned) {
		t.Fatalf("ride status = %s, want ASSIGNED", status)
	}
}

func TestAcceptPending_VsCancelRace(t *testing.T) {
	pool := setupTestPool(t)
	uow := NewUnitOfWork(pool)
	offers := NewOfferRepo()
	rides := NewRideRepo()

	r := seedSearchingRide(t, uow)

	o, err := offer.NewOffer(uuid.NewString(), r.ID, uuid.NewString(), 1, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("new offer: %v", err)
	}
	err = uow.WithinTx(context.Background(), func(txCtx context.Context) error {
		return offers.CreateBatch(txCtx, []*offer.Offer{o})
	})
	if err != nil {
		t.Fatalf("insert offer: %v", err)
	}

	var accepted, cancelled bool
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		now := time.Now().UTC()
		err := uow.WithinTx(context.Background(), func(txCtx context.Context) error {
			won, err := offers.AcceptPending(txCtx, o.ID, o.DriverID, now)
			if err != nil {
				return err
			}
			if !won {
				return nil
			}
			accepted = true
			_, err = rides.AssignDriver(txCtx, o.RideID, o.DriverID, now)
			return err
		})
		if err != nil {
			t.Errorf("accept tx: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		now := time.Now().UTC()
		err := uow.WithinTx(context.Background(), func(txCtx context.Context) error {
			ok, err := rides.Cancel(txCtx, r.ID, "passenger cancelled", now)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			cancelled = true
			_, err = offers.ExpirePending(txCtx, r.ID, now)
			return err
		})
		if err != nil {
			t.Errorf("cancel tx: %v", err)
		}
	}()

	wg.Wait()

	// exactly one of the two transitions may land on a SEARCHING ride;
	// cancel also wins over an ASSIGNED ride, so both landing is legal only
	// in the accept-then-cancel order
	var status string
	if err := pool.QueryRow(context.Background(), `SELECT status FROM rides WHERE id = $1`, r.ID).Scan(&status); err != nil {
		t.Fatalf("read ride: %v", err)
	}
	switch {
	case accepted && !cancelled:
		if status != string(ride.StatusAssigned) {
			t.Fatalf("ride status = %s, want ASSIGNED", status)
		}
	case cancelled:
		if status != string(ride.StatusCancelled) {
			t.Fatalf("ride status = %s, want CANCELLED", status)
		}
	default:
		t.Fatal("neither accept nor cancel landed")
	}
}
