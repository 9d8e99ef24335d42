package service

import (
	"context"
	"sync"
	"time"

	"ride-dispatch/internal/domain/driver"
	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/offer"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

// memStore backs the in-memory fakes. fakeUoW serializes transactions on the
// store mutex, so the conditional updates below are atomic the same way the
// row-locked SQL versions are.
type memStore struct {
	mu     sync.Mutex
	rides  map[string]*ride.Ride
	offers map[string]*offer.Offer
	avail  map[string]*driver.Availability
	events []*ride.Event
}

func newMemStore() *memStore {
	return &memStore{
		rides:  make(map[string]*ride.Ride),
		offers: make(map[string]*offer.Offer),
		avail:  make(map[string]*driver.Availability),
	}
}

type txMarker struct{}

type fakeUoW struct{ store *memStore }

func (u *fakeUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return fn(context.WithValue(ctx, txMarker{}, struct{}{}))
}

// ----- rides -----

type fakeRideRepo struct{ store *memStore }

func (r *fakeRideRepo) Create(_ context.Context, rd *ride.Ride) error {
	cp := *rd
	r.store.rides[rd.ID] = &cp
	return nil
}

func (r *fakeRideRepo) GetByID(_ context.Context, id string) (*ride.Ride, error) {
	rd, ok := r.store.rides[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *rd
	return &cp, nil
}

func (r *fakeRideRepo) StatusForUpdate(_ context.Context, rideID string) (ride.Status, error) {
	rd, ok := r.store.rides[rideID]
	if !ok {
		return "", ports.ErrNotFound
	}
	return rd.Status, nil
}

func (r *fakeRideRepo) ListByStatus(_ context.Context, status ride.Status) ([]*ride.Ride, error) {
	var out []*ride.Ride
	for _, rd := range r.store.rides {
		if rd.Status == status {
			cp := *rd
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRideRepo) AssignDriver(_ context.Context, rideID, driverID string, at time.Time) (bool, error) {
	rd, ok := r.store.rides[rideID]
	if !ok || rd.Status != ride.StatusSearching {
		return false, nil
	}
	rd.Status = ride.StatusAssigned
	rd.AssignedDriverID = &driverID
	rd.AssignedAt = &at
	rd.UpdatedAt = at
	return true, nil
}

func (r *fakeRideRepo) MarkNoDriversAvailable(_ context.Context, rideID string, at time.Time) (bool, error) {
	rd, ok := r.store.rides[rideID]
	if !ok || rd.Status != ride.StatusSearching {
		return false, nil
	}
	rd.Status = ride.StatusNoDriversAvailable
	rd.UpdatedAt = at
	return true, nil
}

func (r *fakeRideRepo) Cancel(_ context.Context, rideID, reason string, at time.Time) (bool, error) {
	rd, ok := r.store.rides[rideID]
	if !ok || !rd.Status.CanTransitionTo(ride.StatusCancelled) {
		return false, nil
	}
	rd.Status = ride.StatusCancelled
	rd.CancellationReason = &reason
	rd.CancelledAt = &at
	rd.UpdatedAt = at
	return true, nil
}

func (r *fakeRideRepo) UpdateStatus(_ context.Context, rideID string, from, to ride.Status, at time.Time) (bool, error) {
	rd, ok := r.store.rides[rideID]
	if !ok || rd.Status != from || !from.CanTransitionTo(to) {
		return false, nil
	}
	rd.Status = to
	rd.UpdatedAt = at
	switch to {
	case ride.StatusArrived:
		rd.ArrivedAt = &at
	case ride.StatusInProgress:
		rd.StartedAt = &at
	case ride.StatusCompleted:
		rd.CompletedAt = &at
	}
	return true, nil
}

// ----- offers -----

type fakeOfferRepo struct{ store *memStore }

func (r *fakeOfferRepo) CreateBatch(_ context.Context, offers []*offer.Offer) error {
	for _, o := range offers {
		cp := *o
		r.store.offers[o.ID] = &cp
	}
	return nil
}

func (r *fakeOfferRepo) GetByID(_ context.Context, id string) (*offer.Offer, error) {
	o, ok := r.store.offers[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOfferRepo) ListByRide(_ context.Context, rideID string) ([]*offer.Offer, error) {
	var out []*offer.Offer
	for _, o := range r.store.offers {
		if o.RideID == rideID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOfferRepo) OfferedDriverIDs(_ context.Context, rideID string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, o := range r.store.offers {
		if o.RideID == rideID && !seen[o.DriverID] {
			seen[o.DriverID] = true
			out = append(out, o.DriverID)
		}
	}
	return out, nil
}

func (r *fakeOfferRepo) MaxBatchNumber(_ context.Context, rideID string) (int, error) {
	max := 0
	for _, o := range r.store.offers {
		if o.RideID == rideID && o.BatchNumber > max {
			max = o.BatchNumber
		}
	}
	return max, nil
}

func (r *fakeOfferRepo) AcceptPending(_ context.Context, offerID, driverID string, now time.Time) (bool, error) {
	o, ok := r.store.offers[offerID]
	if !ok || o.DriverID != driverID || o.Status != offer.StatusPending || o.ExpiredAt(now) {
		return false, nil
	}
	rd, ok := r.store.rides[o.RideID]
	if !ok || rd.Status != ride.StatusSearching {
		return false, nil
	}
	o.Status = offer.StatusAccepted
	o.RespondedAt = &now
	return true, nil
}

func (r *fakeOfferRepo) RejectPending(_ context.Context, offerID, driverID string, now time.Time) (bool, error) {
	o, ok := r.store.offers[offerID]
	if !ok || o.DriverID != driverID || o.Status != offer.StatusPending || o.ExpiredAt(now) {
		return false, nil
	}
	o.Status = offer.StatusRejected
	o.RespondedAt = &now
	return true, nil
}

func (r *fakeOfferRepo) SupersedePending(_ context.Context, rideID, winningOfferID string, now time.Time) ([]string, error) {
	var drivers []string
	for _, o := range r.store.offers {
		if o.RideID == rideID && o.ID != winningOfferID && o.Status == offer.StatusPending {
			o.Status = offer.StatusSuperseded
			o.RespondedAt = &now
			drivers = append(drivers, o.DriverID)
		}
	}
	return drivers, nil
}

func (r *fakeOfferRepo) ExpirePending(_ context.Context, rideID string, now time.Time) ([]string, error) {
	var drivers []string
	for _, o := range r.store.offers {
		if o.RideID == rideID && o.Status == offer.StatusPending {
			o.Status = offer.StatusExpired
			o.RespondedAt = &now
			drivers = append(drivers, o.DriverID)
		}
	}
	return drivers, nil
}

// ----- availability -----

type fakeAvailabilityRepo struct{ store *memStore }

func (r *fakeAvailabilityRepo) Upsert(_ context.Context, a *driver.Availability) error {
	cp := *a
	r.store.avail[a.DriverID] = &cp
	return nil
}

func (r *fakeAvailabilityRepo) GetByID(_ context.Context, driverID string) (*driver.Availability, error) {
	a, ok := r.store.avail[driverID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAvailabilityRepo) SetOnline(_ context.Context, driverID string, loc geo.Point, at time.Time) error {
	a, ok := r.store.avail[driverID]
	if !ok {
		return ports.ErrNotFound
	}
	a.IsOnline = true
	a.IsAvailable = true
	a.LastKnownLocation = loc
	a.LastSeenAt = at
	a.AvailableSince = at
	a.UpdatedAt = at
	return nil
}

func (r *fakeAvailabilityRepo) SetOffline(_ context.Context, driverID string, at time.Time) error {
	a, ok := r.store.avail[driverID]
	if !ok {
		return ports.ErrNotFound
	}
	a.IsOnline = false
	a.IsAvailable = false
	a.UpdatedAt = at
	return nil
}

func (r *fakeAvailabilityRepo) UpdateLocation(_ context.Context, driverID string, loc geo.Point, at time.Time) error {
	a, ok := r.store.avail[driverID]
	if !ok {
		return ports.ErrNotFound
	}
	a.LastKnownLocation = loc
	a.LastSeenAt = at
	a.UpdatedAt = at
	return nil
}

func (r *fakeAvailabilityRepo) Touch(_ context.Context, driverID string, at time.Time) error {
	a, ok := r.store.avail[driverID]
	if !ok {
		return nil
	}
	a.LastSeenAt = at
	a.UpdatedAt = at
	return nil
}

func (r *fakeAvailabilityRepo) Hold(_ context.Context, driverID string, at time.Time) (bool, error) {
	a, ok := r.store.avail[driverID]
	if !ok || !a.IsAvailable {
		return false, nil
	}
	a.IsAvailable = false
	a.UpdatedAt = at
	return true, nil
}

func (r *fakeAvailabilityRepo) Release(_ context.Context, driverID string, at time.Time) error {
	a, ok := r.store.avail[driverID]
	if !ok {
		return ports.ErrNotFound
	}
	if a.IsOnline {
		a.IsAvailable = true
		a.AvailableSince = at
	}
	a.UpdatedAt = at
	return nil
}

func (r *fakeAvailabilityRepo) FindAvailable(_ context.Context, candidateIDs []string, vt ride.VehicleType, exclude []string) ([]driver.Availability, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	var out []driver.Availability
	for _, id := range candidateIDs {
		a, ok := r.store.avail[id]
		if !ok || !a.IsOnline || !a.IsAvailable || a.VehicleType != vt || excluded[id] {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

// ----- events -----

type fakeEventRepo struct{ store *memStore }

func (r *fakeEventRepo) Append(_ context.Context, e *ride.Event) error {
	cp := *e
	r.store.events = append(r.store.events, &cp)
	return nil
}

func (r *fakeEventRepo) ListByRide(_ context.Context, rideID string) ([]*ride.Event, error) {
	var out []*ride.Event
	for _, e := range r.store.events {
		if e.RideID == rideID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ----- geo index -----

type fakeGeoIndex struct {
	mu        sync.Mutex
	locations map[string]geo.Point
}

func newFakeGeoIndex() *fakeGeoIndex {
	return &fakeGeoIndex{locations: make(map[string]geo.Point)}
}

func (g *fakeGeoIndex) Upsert(_ context.Context, driverID string, loc geo.Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locations[driverID] = loc
	return nil
}

func (g *fakeGeoIndex) Remove(_ context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locations, driverID)
	return nil
}

func (g *fakeGeoIndex) Nearby(_ context.Context, center geo.Point, radiusKM float64, limit int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	type hit struct {
		id   string
		dist float64
	}
	var hits []hit
	for id, loc := range g.locations {
		if d := geo.HaversineKM(center, loc); d <= radiusKM {
			hits = append(hits, hit{id, d})
		}
	}
	for i := range hits {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].dist < hits[i].dist {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.id)
	}
	return out, nil
}

// ----- registry -----

type sentEvent struct {
	UserID  string
	Event   string
	Payload any
}

type fakeRegistry struct {
	mu      sync.Mutex
	offline map[string]bool
	sent    []sentEvent
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{offline: make(map[string]bool)}
}

func (r *fakeRegistry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.offline[userID]
}

func (r *fakeRegistry) Send(userID, event string, payload any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline[userID] {
		return false
	}
	r.sent = append(r.sent, sentEvent{UserID: userID, Event: event, Payload: payload})
	return true
}

func (r *fakeRegistry) sentTo(userID, event string) []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentEvent
	for _, s := range r.sent {
		if s.UserID == userID && s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

// ----- publisher -----

type publishedMessage struct {
	Exchange   string
	RoutingKey string
	Body       []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

func (p *fakePublisher) Publish(exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{exchange, routingKey, body})
	return nil
}

// ----- harness -----

type testEngine struct {
	store    *memStore
	geo      *fakeGeoIndex
	registry *fakeRegistry
	pub      *fakePublisher
	svc      ports.DispatchService
	drivers  ports.DriverService
	cancel   context.CancelFunc
}

func defaultTestSettings() Settings {
	return Settings{
		OfferWindow:      80 * time.Millisecond,
		BatchSize:        2,
		InitialRadiusKM:  3.0,
		MaxRadiusKM:      15.0,
		RadiusMultiplier: 2.0,
	}
}

func newTestEngine(settings Settings) *testEngine {
	store := newMemStore()
	gi := newFakeGeoIndex()
	registry := newFakeRegistry()
	pub := &fakePublisher{}
	uow := &fakeUoW{store: store}
	log := logger.New("dispatch-test")

	rootCtx, cancel := context.WithCancel(context.Background())
	svc := NewDispatchService(
		rootCtx,
		log,
		settings,
		uow,
		&fakeRideRepo{store: store},
		&fakeOfferRepo{store: store},
		&fakeAvailabilityRepo{store: store},
		&fakeEventRepo{store: store},
		gi,
		NewFareEstimator(),
		registry,
		pub,
	)
	drivers := NewDriverService(log, uow, &fakeAvailabilityRepo{store: store}, gi, pub, noopFeed{})

	return &testEngine{
		store:    store,
		geo:      gi,
		registry: registry,
		pub:      pub,
		svc:      svc,
		drivers:  drivers,
		cancel:   cancel,
	}
}

type noopFeed struct{}

func (noopFeed) PublishPing(context.Context, string, geo.Point, time.Time) error { return nil }

// addDriver seeds an online, available driver in both the store and the geo index.
func (e *testEngine) addDriver(id string, loc geo.Point, vt ride.VehicleType, rating float64) {
	a, err := driver.NewAvailability(id, vt, rating)
	if err != nil {
		panic(err)
	}
	a.GoOnline(loc)
	e.store.mu.Lock()
	e.store.avail[id] = a
	e.store.mu.Unlock()
	_ = e.geo.Upsert(context.Background(), id, loc)
}

// addRide seeds a SEARCHING ride without starting a dispatch loop.
func (e *testEngine) addRide(id, customerID string, vt ride.VehicleType, pickup, dropoff geo.Point) *ride.Ride {
	r, err := ride.NewRide(id, "RIDE_TEST_"+id, customerID, vt, pickup, dropoff, 1000)
	if err != nil {
		panic(err)
	}
	e.store.mu.Lock()
	e.store.rides[id] = r
	e.store.mu.Unlock()
	return r
}

// addOffer seeds a PENDING offer row.
func (e *testEngine) addOffer(id, rideID, driverID string, batch int, expiresAt time.Time) *offer.Offer {
	o := &offer.Offer{
		ID:          id,
		RideID:      rideID,
		DriverID:    driverID,
		BatchNumber: batch,
		Status:      offer.StatusPending,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}
	e.store.mu.Lock()
	e.store.offers[id] = o
	e.store.mu.Unlock()
	return o
}

func (e *testEngine) rideStatus(id string) ride.Status {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	r, ok := e.store.rides[id]
	if !ok {
		return ""
	}
	return r.Status
}

func (e *testEngine) offerStatus(id string) offer.Status {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	o, ok := e.store.offers[id]
	if !ok {
		return ""
	}
	return o.Status
}

func (e *testEngine) offersForRide(rideID string) []offer.Offer {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	var out []offer.Offer
	for _, o := range e.store.offers {
		if o.RideID == rideID {
			out = append(out, *o)
		}
	}
	return out
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
