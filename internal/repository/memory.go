package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/pkg/geo"
)

// MemoryStore is an in-process backend used when STORAGE_DRIVER=memory and
// in tests. One mutex guards every table, so each method is a single atomic
// step with the same conditional semantics as the SQL statements.
type MemoryStore struct {
	mu sync.Mutex

	bookings     map[string]*model.Booking
	bookingOrder []string
	history      map[string][]model.TripHistory
	assignments  map[string][]model.BookingAssignment

	drivers map[string]*model.DriverState

	tiers       []*model.PricingTier
	commissions []*model.Commission

	driverEarnings map[string]model.Earnings
	adminEarnings  map[string]model.Earnings

	profiles map[string]*model.Profile
	tracking map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:       make(map[string]*model.Booking),
		history:        make(map[string][]model.TripHistory),
		assignments:    make(map[string][]model.BookingAssignment),
		drivers:        make(map[string]*model.DriverState),
		driverEarnings: make(map[string]model.Earnings),
		adminEarnings:  make(map[string]model.Earnings),
		profiles:       make(map[string]*model.Profile),
		tracking:       make(map[string]string),
	}
}

// Views over the shared tables. Each satisfies the same contract as the
// corresponding PostgreSQL repository.
func (s *MemoryStore) Bookings() *MemoryBookings       { return &MemoryBookings{s} }
func (s *MemoryStore) Drivers() *MemoryDrivers         { return &MemoryDrivers{s} }
func (s *MemoryStore) Pricing() *MemoryPricing         { return &MemoryPricing{s} }
func (s *MemoryStore) Commissions() *MemoryCommissions { return &MemoryCommissions{s} }
func (s *MemoryStore) Identity() *MemoryIdentity       { return &MemoryIdentity{s} }
func (s *MemoryStore) Tracker() *MemoryTracker         { return &MemoryTracker{s} }

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	return &c
}

func cloneDriver(d *model.DriverState) *model.DriverState {
	c := *d
	if d.Location != nil {
		loc := *d.Location
		c.Location = &loc
	}
	return &c
}

// ─── Bookings ───────────────────────────────────────────────

// MemoryBookings is the in-memory booking table.
type MemoryBookings struct{ s *MemoryStore }

// Create inserts a requested booking and its first history row.
func (m *MemoryBookings) Create(_ context.Context, b *model.Booking) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, exists := m.s.bookings[b.ID]; exists {
		return ErrDuplicate
	}
	if b.Status == model.StatusRequested {
		for _, other := range m.s.bookings {
			if other.PassengerID == b.PassengerID && other.Status == model.StatusRequested {
				return ErrDuplicate
			}
		}
	}
	m.s.bookings[b.ID] = cloneBooking(b)
	m.s.bookingOrder = append(m.s.bookingOrder, b.ID)
	m.s.appendHistory(b)
	return nil
}

// Get returns a copy of the booking.
func (m *MemoryBookings) Get(_ context.Context, id string) (*model.Booking, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	b, ok := m.s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBooking(b), nil
}

// List returns bookings matching the filter, newest first.
func (m *MemoryBookings) List(_ context.Context, f BookingFilter) ([]*model.Booking, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var out []*model.Booking
	for i := len(m.s.bookingOrder) - 1; i >= 0; i-- {
		b, ok := m.s.bookings[m.s.bookingOrder[i]]
		if !ok || !f.matches(b) {
			continue
		}
		out = append(out, cloneBooking(b))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// ListRequestedNear returns requested bookings within radiusKm of origin,
// nearest first. Ties keep creation order.
func (m *MemoryBookings) ListRequestedNear(_ context.Context, origin model.Location, radiusKm float64) ([]*model.Booking, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var pending []*model.Booking
	for _, id := range m.s.bookingOrder {
		if b, ok := m.s.bookings[id]; ok && b.Status == model.StatusRequested {
			pending = append(pending, cloneBooking(b))
		}
	}
	ranked := geo.RankWithin(origin, pending, func(b *model.Booking) (model.Location, bool) {
		return b.Pickup, true
	}, radiusKm)

	out := make([]*model.Booking, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Item)
	}
	return out, nil
}

// HasRequested reports whether the passenger has a requested booking.
func (m *MemoryBookings) HasRequested(_ context.Context, passengerID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, b := range m.s.bookings {
		if b.PassengerID == passengerID && b.Status == model.StatusRequested {
			return true, nil
		}
	}
	return false, nil
}

// HasActiveForDriver reports whether the driver has an accepted or ongoing booking.
func (m *MemoryBookings) HasActiveForDriver(_ context.Context, driverID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.driverBusy(driverID), nil
}

// Transition applies the compare-and-swap described by t.
func (m *MemoryBookings) Transition(_ context.Context, t Transition) (*model.Booking, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	cur, ok := m.s.bookings[t.BookingID]
	if !ok {
		return nil, ErrStaleState
	}
	if !t.allows(cur.Status) {
		return nil, ErrStaleState
	}
	if t.To == model.StatusAccepted && m.s.driverBusy(t.DriverID) {
		return nil, ErrDuplicate
	}

	next := cloneBooking(cur)
	next.Status = t.To
	next.UpdatedAt = t.At
	at := t.At
	switch t.To {
	case model.StatusAccepted:
		next.DriverID = t.DriverID
		next.AcceptedAt = &at
	case model.StatusOngoing:
		next.StartedAt = &at
	case model.StatusCompleted:
		next.CompletedAt = &at
		fare := next.FareEstimated
		next.FareFinal = &fare
	}

	m.s.bookings[t.BookingID] = next
	m.s.appendHistory(next)

	if a := t.Assignment; a != nil {
		m.s.assignments[a.BookingID] = append(m.s.assignments[a.BookingID], *a)
	}
	if st := t.Settlement; st != nil {
		if _, done := m.s.driverEarnings[t.BookingID]; !done {
			m.s.driverEarnings[t.BookingID] = st.Driver
		}
		if _, done := m.s.adminEarnings[t.BookingID]; !done {
			m.s.adminEarnings[t.BookingID] = st.Platform
		}
	}
	return cloneBooking(next), nil
}

// Rate writes a rating once on a completed booking.
func (m *MemoryBookings) Rate(_ context.Context, rt Rating) (*model.Booking, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	cur, ok := m.s.bookings[rt.BookingID]
	if !ok || cur.Status != model.StatusCompleted {
		return nil, ErrStaleState
	}
	next := cloneBooking(cur)
	v := rt.Value
	switch rt.Target {
	case RateDriver:
		if cur.DriverRating != nil {
			return nil, ErrStaleState
		}
		next.DriverRating, next.DriverComment = &v, rt.Comment
	default:
		if cur.PassengerRating != nil {
			return nil, ErrStaleState
		}
		next.PassengerRating, next.PassengerComment = &v, rt.Comment
	}
	next.UpdatedAt = rt.At
	m.s.bookings[rt.BookingID] = next
	return cloneBooking(next), nil
}

// DeleteUnstarted removes a requested or accepted booking.
func (m *MemoryBookings) DeleteUnstarted(_ context.Context, id string) (*model.Booking, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	cur, ok := m.s.bookings[id]
	if !ok || (cur.Status != model.StatusRequested && cur.Status != model.StatusAccepted) {
		return nil, ErrStaleState
	}
	delete(m.s.bookings, id)
	delete(m.s.assignments, id)
	return cur, nil
}

// History returns the booking's trip history in transition order.
func (m *MemoryBookings) History(_ context.Context, bookingID string) ([]model.TripHistory, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	h := m.s.history[bookingID]
	out := make([]model.TripHistory, len(h))
	copy(out, h)
	return out, nil
}

// Assignments returns the dispatcher assignments recorded for a booking.
func (m *MemoryBookings) Assignments(bookingID string) []model.BookingAssignment {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]model.BookingAssignment, len(m.s.assignments[bookingID]))
	copy(out, m.s.assignments[bookingID])
	return out
}

func (s *MemoryStore) appendHistory(b *model.Booking) {
	s.history[b.ID] = append(s.history[b.ID], model.TripHistory{
		ID:          uuid.NewString(),
		BookingID:   b.ID,
		DriverID:    b.DriverID,
		PassengerID: b.PassengerID,
		Status:      b.Status,
		CreatedAt:   b.UpdatedAt,
	})
}

func (s *MemoryStore) driverBusy(driverID string) bool {
	for _, b := range s.bookings {
		if b.DriverID == driverID && b.Status.Active() {
			return true
		}
	}
	return false
}

// ─── Drivers ────────────────────────────────────────────────

// MemoryDrivers is the in-memory driver state table.
type MemoryDrivers struct{ s *MemoryStore }

// Put inserts or replaces a driver state.
func (m *MemoryDrivers) Put(d *model.DriverState) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.drivers[d.DriverID] = cloneDriver(d)
}

// Get returns a copy of the driver state.
func (m *MemoryDrivers) Get(_ context.Context, driverID string) (*model.DriverState, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	d, ok := m.s.drivers[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDriver(d), nil
}

// ListAvailable returns available drivers with a location, ordered by ID.
func (m *MemoryDrivers) ListAvailable(_ context.Context, vt model.VehicleType) ([]*model.DriverState, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var out []*model.DriverState
	for _, d := range m.s.drivers {
		if !d.Available || d.Location == nil {
			continue
		}
		if vt != "" && d.VehicleType != vt {
			continue
		}
		out = append(out, cloneDriver(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}

// TryClaim flips an available, idle driver to unavailable.
func (m *MemoryDrivers) TryClaim(_ context.Context, driverID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	d, ok := m.s.drivers[driverID]
	if !ok || !d.Available || m.s.driverBusy(driverID) {
		return false, nil
	}
	d.Available = false
	d.UpdatedAt = time.Now()
	return true, nil
}

// Release marks the driver available.
func (m *MemoryDrivers) Release(_ context.Context, driverID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if d, ok := m.s.drivers[driverID]; ok && !d.Available {
		d.Available = true
		d.UpdatedAt = time.Now()
	}
	return nil
}

// UpdateLocation upserts the driver's position.
func (m *MemoryDrivers) UpdateLocation(
	_ context.Context,
	driverID string,
	loc model.DriverLocation,
	vt model.VehicleType,
	at time.Time,
) (*model.DriverState, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	d, ok := m.s.drivers[driverID]
	if !ok {
		d = &model.DriverState{DriverID: driverID, Available: true}
		m.s.drivers[driverID] = d
	}
	next := loc
	if next.Bearing == nil && d.Location != nil {
		next.Bearing = d.Location.Bearing
	}
	d.Location = &next
	if vt != "" {
		d.VehicleType = vt
	}
	d.UpdatedAt = at
	return cloneDriver(d), nil
}

// ─── Pricing ────────────────────────────────────────────────

// MemoryPricing is the in-memory pricing tier table.
type MemoryPricing struct{ s *MemoryStore }

// ActiveTier returns the latest active tier for vt, or ErrNotFound.
func (m *MemoryPricing) ActiveTier(_ context.Context, vt model.VehicleType) (*model.PricingTier, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var best *model.PricingTier
	for _, t := range m.s.tiers {
		if t.VehicleType != vt || !t.IsActive {
			continue
		}
		if best == nil || !t.UpdatedAt.Before(best.UpdatedAt) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	c := *best
	return &c, nil
}

// ListActive returns the active tiers ordered by vehicle type.
func (m *MemoryPricing) ListActive(_ context.Context) ([]*model.PricingTier, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var out []*model.PricingTier
	for _, t := range m.s.tiers {
		if t.IsActive {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleType < out[j].VehicleType })
	return out, nil
}

// SetActive deactivates the current tier for the vehicle type and appends tier.
func (m *MemoryPricing) SetActive(_ context.Context, tier *model.PricingTier) (*model.PricingTier, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for _, t := range m.s.tiers {
		if t.VehicleType == tier.VehicleType {
			t.IsActive = false
		}
	}
	c := *tier
	c.IsActive = true
	m.s.tiers = append(m.s.tiers, &c)
	out := c
	return &out, nil
}

// ─── Commissions & earnings ─────────────────────────────────

// MemoryCommissions is the in-memory commission and earnings tables.
type MemoryCommissions struct{ s *MemoryStore }

// Active returns the active commission, or ErrNotFound.
func (m *MemoryCommissions) Active(_ context.Context) (*model.Commission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := len(m.s.commissions) - 1; i >= 0; i-- {
		if c := m.s.commissions[i]; c.IsActive {
			out := *c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// SetActive deactivates all previous commissions and appends c as active.
func (m *MemoryCommissions) SetActive(_ context.Context, c *model.Commission) (*model.Commission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, prev := range m.s.commissions {
		prev.IsActive = false
	}
	next := *c
	next.IsActive = true
	m.s.commissions = append(m.s.commissions, &next)
	out := next
	return &out, nil
}

// All returns every commission record, oldest first.
func (m *MemoryCommissions) All() []model.Commission {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]model.Commission, len(m.s.commissions))
	for i, c := range m.s.commissions {
		out[i] = *c
	}
	return out
}

// Earnings returns the settlement for a booking, or ErrNotFound.
func (m *MemoryCommissions) Earnings(_ context.Context, bookingID string) (*model.Settlement, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	d, okD := m.s.driverEarnings[bookingID]
	p, okP := m.s.adminEarnings[bookingID]
	if !okD || !okP {
		return nil, ErrNotFound
	}
	return &model.Settlement{Driver: d, Platform: p}, nil
}

// EarningsCount returns how many driver and platform records exist.
func (m *MemoryCommissions) EarningsCount() (driver, platform int) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.driverEarnings), len(m.s.adminEarnings)
}

// ─── Identity ───────────────────────────────────────────────

// MemoryIdentity serves profiles registered with PutProfile.
type MemoryIdentity struct{ s *MemoryStore }

// PutProfile registers display data for a user.
func (m *MemoryIdentity) PutProfile(p *model.Profile) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *p
	m.s.profiles[p.ID] = &c
}

// Profile returns the user's display data, or ErrNotFound.
func (m *MemoryIdentity) Profile(_ context.Context, userID string) (*model.Profile, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

// ─── Tracking ───────────────────────────────────────────────

// MemoryTracker records which bookings have live tracking on.
type MemoryTracker struct{ s *MemoryStore }

// Start begins tracking.
func (m *MemoryTracker) Start(_ context.Context, bookingID, driverID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.tracking[bookingID] = driverID
	return nil
}

// Stop ends tracking.
func (m *MemoryTracker) Stop(_ context.Context, bookingID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.tracking, bookingID)
	return nil
}

// Tracking returns the tracked driver for a booking.
func (m *MemoryTracker) Tracking(bookingID string) (string, bool) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	d, ok := m.s.tracking[bookingID]
	return d, ok
}
