package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/ridedispatch/internal/model"
)

func newRequested(passengerID string) *model.Booking {
	now := time.Now()
	return &model.Booking{
		ID:            uuid.NewString(),
		PassengerID:   passengerID,
		Pickup:        model.Location{Lat: 9.0, Lon: 38.7},
		Dropoff:       model.Location{Lat: 9.02, Lon: 38.72},
		VehicleType:   model.VehicleMini,
		Status:        model.StatusRequested,
		FareEstimated: 5.1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestMemoryBookings_OneRequestedPerPassenger(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Bookings()

	require.NoError(t, store.Create(ctx, newRequested("p1")))
	assert.ErrorIs(t, store.Create(ctx, newRequested("p1")), ErrDuplicate)
	assert.NoError(t, store.Create(ctx, newRequested("p2")))

	has, err := store.HasRequested(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestMemoryBookings_TransitionIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Bookings()
	b := newRequested("p1")
	require.NoError(t, store.Create(ctx, b))

	accept := func(driverID string) Transition {
		return Transition{
			BookingID: b.ID,
			From:      []model.BookingStatus{model.StatusRequested},
			To:        model.StatusAccepted,
			DriverID:  driverID,
			At:        time.Now(),
		}
	}

	got, err := store.Transition(ctx, accept("d1"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
	assert.Equal(t, "d1", got.DriverID)
	require.NotNil(t, got.AcceptedAt)

	_, err = store.Transition(ctx, accept("d2"))
	assert.ErrorIs(t, err, ErrStaleState)

	cur, err := store.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "d1", cur.DriverID)
}

func TestMemoryBookings_ConcurrentAcceptHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Bookings()
	b := newRequested("p1")
	require.NoError(t, store.Create(ctx, b))

	const n = 16
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := store.Transition(ctx, Transition{
				BookingID: b.ID,
				From:      []model.BookingStatus{model.StatusRequested},
				To:        model.StatusAccepted,
				DriverID:  uuid.NewString(),
				At:        time.Now(),
			})
			if err == nil {
				wins.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	history, _ := store.History(ctx, b.ID)
	assert.Len(t, history, 2)
}

func TestMemoryBookings_DriverCannotHoldTwoActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Bookings()
	b1, b2 := newRequested("p1"), newRequested("p2")
	require.NoError(t, store.Create(ctx, b1))
	require.NoError(t, store.Create(ctx, b2))

	tr := Transition{From: []model.BookingStatus{model.StatusRequested}, To: model.StatusAccepted, DriverID: "d1", At: time.Now()}
	tr.BookingID = b1.ID
	_, err := store.Transition(ctx, tr)
	require.NoError(t, err)

	tr.BookingID = b2.ID
	_, err = store.Transition(ctx, tr)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryBookings_SettlementWrittenOnce(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	store := ms.Bookings()
	b := newRequested("p1")
	b.Status = model.StatusOngoing
	b.DriverID = "d1"
	require.NoError(t, store.Create(ctx, b))

	settle := &model.Settlement{
		Driver:   model.Earnings{ID: uuid.NewString(), BookingID: b.ID, Party: model.PartyDriver, GrossFare: 5.1},
		Platform: model.Earnings{ID: uuid.NewString(), BookingID: b.ID, Party: model.PartyPlatform, GrossFare: 5.1},
	}
	complete := Transition{
		BookingID:  b.ID,
		From:       []model.BookingStatus{model.StatusOngoing},
		To:         model.StatusCompleted,
		At:         time.Now(),
		Settlement: settle,
	}

	got, err := store.Transition(ctx, complete)
	require.NoError(t, err)
	require.NotNil(t, got.FareFinal)
	assert.Equal(t, 5.1, *got.FareFinal)

	_, err = store.Transition(ctx, complete)
	assert.ErrorIs(t, err, ErrStaleState)

	d, p := ms.Commissions().EarningsCount()
	assert.Equal(t, 1, d)
	assert.Equal(t, 1, p)
}

func TestMemoryBookings_RateOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Bookings()
	b := newRequested("p1")
	require.NoError(t, store.Create(ctx, b))

	_, err := store.Rate(ctx, Rating{BookingID: b.ID, Target: RateDriver, Value: 5})
	assert.ErrorIs(t, err, ErrStaleState, "requested booking cannot be rated")

	b2 := newRequested("p2")
	b2.Status = model.StatusCompleted
	require.NoError(t, store.Create(ctx, b2))

	got, err := store.Rate(ctx, Rating{BookingID: b2.ID, Target: RateDriver, Value: 4, Comment: "smooth"})
	require.NoError(t, err)
	require.NotNil(t, got.DriverRating)
	assert.Equal(t, 4, *got.DriverRating)
	assert.Nil(t, got.PassengerRating)

	_, err = store.Rate(ctx, Rating{BookingID: b2.ID, Target: RateDriver, Value: 1})
	assert.ErrorIs(t, err, ErrStaleState)
}

func TestMemoryBookings_DeleteUnstartedKeepsHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Bookings()
	b := newRequested("p1")
	require.NoError(t, store.Create(ctx, b))

	_, err := store.DeleteUnstarted(ctx, b.ID)
	require.NoError(t, err)

	_, err = store.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	history, _ := store.History(ctx, b.ID)
	assert.Len(t, history, 1)

	_, err = store.DeleteUnstarted(ctx, b.ID)
	assert.ErrorIs(t, err, ErrStaleState)
}

func TestMemoryBookings_ListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Bookings()
	first, second := newRequested("p1"), newRequested("p2")
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	all, err := store.List(ctx, BookingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	mine, err := store.List(ctx, BookingFilter{PassengerID: "p1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	none, err := store.List(ctx, BookingFilter{Status: model.StatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryBookings_ListRequestedNear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Bookings()

	far, near, mid := newRequested("p1"), newRequested("p2"), newRequested("p3")
	far.Pickup = model.Location{Lat: 9.3, Lon: 38.7}
	mid.Pickup = model.Location{Lat: 9.02, Lon: 38.7}
	for _, b := range []*model.Booking{far, near, mid} {
		require.NoError(t, store.Create(ctx, b))
	}
	taken := newRequested("p4")
	require.NoError(t, store.Create(ctx, taken))
	_, err := store.Transition(ctx, Transition{
		BookingID: taken.ID, From: []model.BookingStatus{model.StatusRequested},
		To: model.StatusAccepted, DriverID: "d1", At: time.Now(),
	})
	require.NoError(t, err)

	got, err := store.ListRequestedNear(ctx, model.Location{Lat: 9.0, Lon: 38.7}, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, near.ID, got[0].ID)
	assert.Equal(t, mid.ID, got[1].ID)
}

func TestMemoryDrivers_TryClaimIsAtomic(t *testing.T) {
	ctx := context.Background()
	drivers := NewMemoryStore().Drivers()
	drivers.Put(&model.DriverState{DriverID: "d1", Available: true})

	const n = 32
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ok, _ := drivers.TryClaim(ctx, "d1"); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	require.NoError(t, drivers.Release(ctx, "d1"))
	require.NoError(t, drivers.Release(ctx, "d1"))
	d, err := drivers.Get(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, d.Available)
}

func TestMemoryDrivers_TryClaimRefusesBusyDriver(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	ms.Drivers().Put(&model.DriverState{DriverID: "d1", Available: true})

	b := newRequested("p1")
	b.Status = model.StatusOngoing
	b.DriverID = "d1"
	require.NoError(t, ms.Bookings().Create(ctx, b))

	ok, err := ms.Drivers().TryClaim(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDrivers_UpdateLocationKeepsBearing(t *testing.T) {
	ctx := context.Background()
	drivers := NewMemoryStore().Drivers()
	bearing := 90.0

	_, err := drivers.UpdateLocation(ctx, "d1", model.DriverLocation{Lat: 9, Lon: 38, Bearing: &bearing}, model.VehicleSedan, time.Now())
	require.NoError(t, err)
	d, err := drivers.UpdateLocation(ctx, "d1", model.DriverLocation{Lat: 9.1, Lon: 38.1}, "", time.Now())
	require.NoError(t, err)

	require.NotNil(t, d.Location)
	require.NotNil(t, d.Location.Bearing)
	assert.Equal(t, 90.0, *d.Location.Bearing)
	assert.Equal(t, 9.1, d.Location.Lat)
	assert.Equal(t, model.VehicleSedan, d.VehicleType)
	assert.True(t, d.Available, "new drivers start available")

	avail, err := drivers.ListAvailable(ctx, model.VehicleMini)
	require.NoError(t, err)
	assert.Empty(t, avail)
}

func TestMemoryPricing_LatestActiveWins(t *testing.T) {
	ctx := context.Background()
	pricing := NewMemoryStore().Pricing()

	_, err := pricing.ActiveTier(ctx, model.VehicleVan)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = pricing.SetActive(ctx, &model.PricingTier{ID: "t1", VehicleType: model.VehicleVan, BaseFare: 3, UpdatedAt: time.Now()})
	require.NoError(t, err)
	_, err = pricing.SetActive(ctx, &model.PricingTier{ID: "t2", VehicleType: model.VehicleVan, BaseFare: 4, UpdatedAt: time.Now()})
	require.NoError(t, err)

	tier, err := pricing.ActiveTier(ctx, model.VehicleVan)
	require.NoError(t, err)
	assert.Equal(t, "t2", tier.ID)

	active, err := pricing.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestMemoryCommissions_SingleActive(t *testing.T) {
	ctx := context.Background()
	commissions := NewMemoryStore().Commissions()

	_, err := commissions.Active(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = commissions.SetActive(ctx, &model.Commission{ID: "c1", Percentage: 10})
	require.NoError(t, err)
	_, err = commissions.SetActive(ctx, &model.Commission{ID: "c2", Percentage: 20})
	require.NoError(t, err)

	active, err := commissions.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, active.Percentage)

	all := commissions.All()
	require.Len(t, all, 2)
	assert.False(t, all[0].IsActive, "previous record kept but deactivated")
	assert.True(t, all[1].IsActive)
}
