package booking

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository/memory"
	"github.com/servicebook/booking-api/internal/service/event"
	"github.com/servicebook/booking-api/pkg/errors"
)

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, vendorID, nil, "2025-01-10", "10:00:00")

	b, err := f.svc.CreateBooking(f.ctx, customerUser, serviceID, slotID)
	require.NoError(t, err)

	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.Equal(t, slotID, b.SlotID)
	assert.Equal(t, "Cara Customer", b.CustomerName)
	assert.Equal(t, "cara@example.com", b.CustomerEmail)
	assert.Equal(t, "Pipe repair", b.ServiceTitle)
	assert.Equal(t, float64(80), b.ServicePrice)
	assert.Equal(t, vendorID, b.VendorID)
	assert.Equal(t, "Vic's Plumbing", b.VendorName)
	assert.Equal(t, "2025-01-10", b.SlotDate)
	assert.Equal(t, "10:00:00", b.StartTime)
	assert.False(t, b.BookingDate.IsZero())
	assert.False(t, f.available(t, slotID))

	events := f.store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, event.BookingCreated, events[0].EventType)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	open := f.slot(t, vendorID, nil, "2099-03-01", "09:00:00")
	scoped := f.slot(t, vendorID, int64Ptr(otherServiceID), "2099-03-01", "10:00:00")
	taken := f.slot(t, vendorID, nil, "2099-03-01", "11:00:00")
	f.book(t, otherCustomerUser, taken)

	tests := []struct {
		name      string
		serviceID int64
		slotID    int64
		want      error
	}{
		{"missing slot", serviceID, 999, errors.ErrNotFound},
		{"missing service", 999, open, errors.ErrNotFound},
		{"slot already booked", serviceID, taken, errors.ErrSlotUnavailable},
		{"service of another vendor", foreignService, open, errors.ErrServiceVendorMismatch},
		{"slot scoped to another service", serviceID, scoped, errors.ErrServiceVendorMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBooking(f.ctx, customerUser, tt.serviceID, tt.slotID)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.True(t, f.available(t, open))
	assert.True(t, f.available(t, scoped))
}

func TestCreateBookingConcurrentClaims(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, vendorID, nil, "2099-03-02", "10:00:00")

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(customerID int64) {
			defer wg.Done()
			_, err := f.svc.CreateBooking(f.ctx, customerID, serviceID, slotID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case stderrors.Is(err, errors.ErrSlotUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i%2) + 1)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.False(t, f.available(t, slotID))

	bookings, err := f.svc.ListBookings(f.ctx, admin, model.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, model.BookingStatusPending, bookings[0].Status)
}

func TestCreateBookingRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, vendorID, nil, "2099-03-03", "10:00:00")
	f.store.FailOn(memory.OpOutboxCreate, stderrors.New("disk full"))

	_, err := f.svc.CreateBooking(f.ctx, customerUser, serviceID, slotID)
	assert.ErrorIs(t, err, errors.ErrTransactionAborted)
	assert.True(t, f.available(t, slotID))
	assert.Empty(t, f.store.OutboxEvents())

	f.store.FailOn(memory.OpOutboxCreate, nil)
	_, err = f.svc.CreateBooking(f.ctx, customerUser, serviceID, slotID)
	assert.NoError(t, err)
}

func TestAcceptCompleteThenCancelFails(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, vendorID, nil, "2099-03-04", "10:00:00")
	b := f.book(t, customerUser, slotID)

	accepted, err := f.svc.UpdateBookingStatus(f.ctx, b.ID, "accepted", vendor)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusAccepted, accepted.Status)

	completed, err := f.svc.UpdateBookingStatus(f.ctx, b.ID, "completed", vendor)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, completed.Status)
	assert.False(t, f.available(t, slotID))

	_, err = f.svc.UpdateBookingStatus(f.ctx, b.ID, "cancelled", customer)
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	assert.Equal(t, model.BookingStatusCompleted, f.status(t, b.ID))
}

func TestRejectFreesSlotForAnotherCustomer(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, vendorID, nil, "2099-03-05", "10:00:00")
	b := f.book(t, customerUser, slotID)

	rejected, err := f.svc.UpdateBookingStatus(f.ctx, b.ID, "rejected", vendor)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusRejected, rejected.Status)
	assert.True(t, f.available(t, slotID))

	again, err := f.svc.CreateBooking(f.ctx, otherCustomerUser, serviceID, slotID)
	require.NoError(t, err)
	assert.Equal(t, otherCustomerUser, again.CustomerID)
	assert.False(t, f.available(t, slotID))
}

func TestReleaseIsNotRepeated(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, vendorID, nil, "2099-03-06", "10:00:00")
	first := f.book(t, customerUser, slotID)

	_, err := f.svc.UpdateBookingStatus(f.ctx, first.ID, "cancelled", customer)
	require.NoError(t, err)
	assert.True(t, f.available(t, slotID))

	second := f.book(t, otherCustomerUser, slotID)
	assert.False(t, f.available(t, slotID))

	_, err = f.svc.UpdateBookingStatus(f.ctx, first.ID, "cancelled", customer)
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	assert.False(t, f.available(t, slotID), "terminal booking must not free a slot it no longer holds")
	assert.Equal(t, model.BookingStatusPending, f.status(t, second.ID))
}

func TestUpdateBookingStatusPermissions(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, vendorID, nil, "2099-03-07", "10:00:00")
	b := f.book(t, customerUser, slotID)

	tests := []struct {
		name   string
		status string
		actor  model.Actor
		want   error
	}{
		{"customer accepts own booking", "accepted", customer, errors.ErrForbidden},
		{"other customer cancels", "cancelled", otherCustomer, errors.ErrForbidden},
		{"other vendor accepts", "accepted", otherVendor, errors.ErrForbidden},
		{"vendor without profile", "accepted", model.Actor{UserID: 555, Role: model.RoleVendor}, errors.ErrForbidden},
		{"unknown status", "archived", vendor, errors.ErrBadRequest},
		{"pending is not a target", "pending", admin, errors.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateBookingStatus(f.ctx, b.ID, tt.status, tt.actor)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, model.BookingStatusPending, f.status(t, b.ID))
			assert.False(t, f.available(t, slotID))
		})
	}

	_, err := f.svc.UpdateBookingStatus(f.ctx, 424242, "accepted", admin)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	accepted, err := f.svc.UpdateBookingStatus(f.ctx, b.ID, "accepted", admin)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusAccepted, accepted.Status)
}

func TestIllegalTransitionsLeaveStateUnchanged(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			if _, ok := transitions[edge{from, to}]; ok {
				continue
			}
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				f := newFixture(t)
				slotID := f.slot(t, vendorID, nil, "2099-04-01", "10:00:00")
				b := f.book(t, customerUser, slotID)
				driveTo(t, f, b.ID, from)
				wantAvailable := f.available(t, slotID)

				_, err := f.svc.UpdateBookingStatus(f.ctx, b.ID, string(to), admin)
				assert.ErrorIs(t, err, errors.ErrInvalidTransition)
				assert.Equal(t, from, f.status(t, b.ID))
				assert.Equal(t, wantAvailable, f.available(t, slotID))
			})
		}
	}
}

func driveTo(t *testing.T, f *fixture, bookingID int64, target model.BookingStatus) {
	t.Helper()
	var path []string
	switch target {
	case model.BookingStatusAccepted:
		path = []string{"accepted"}
	case model.BookingStatusCompleted:
		path = []string{"accepted", "completed"}
	case model.BookingStatusRejected:
		path = []string{"rejected"}
	case model.BookingStatusCancelled:
		path = []string{"cancelled"}
	}
	for _, st := range path {
		_, err := f.svc.UpdateBookingStatus(f.ctx, bookingID, st, admin)
		require.NoError(t, err)
	}
}

func TestRescheduleAcceptedBooking(t *testing.T) {
	f := newFixture(t)
	oldSlot := f.slot(t, vendorID, nil, "2099-05-01", "10:00:00")
	newSlot := f.slot(t, vendorID, nil, "2099-05-02", "14:00:00")
	b := f.book(t, customerUser, oldSlot)
	_, err := f.svc.UpdateBookingStatus(f.ctx, b.ID, "accepted", vendor)
	require.NoError(t, err)

	moved, err := f.svc.RescheduleBooking(f.ctx, b.ID, newSlot, customerUser)
	require.NoError(t, err)

	assert.Equal(t, model.BookingStatusPending, moved.Status)
	assert.Equal(t, newSlot, moved.SlotID)
	assert.Equal(t, "2099-05-02", moved.SlotDate)
	assert.True(t, f.available(t, oldSlot))
	assert.False(t, f.available(t, newSlot))

	events := f.store.OutboxEvents()
	assert.Equal(t, event.BookingRescheduled, events[len(events)-1].EventType)
}

func TestRescheduleValidation(t *testing.T) {
	f := newFixture(t)
	oldSlot := f.slot(t, vendorID, nil, "2099-05-03", "10:00:00")
	foreignSlot := f.slot(t, otherVendorID, nil, "2099-05-03", "11:00:00")
	takenSlot := f.slot(t, vendorID, nil, "2099-05-03", "12:00:00")
	scopedSlot := f.slot(t, vendorID, int64Ptr(otherServiceID), "2099-05-03", "13:00:00")
	b := f.book(t, customerUser, oldSlot)
	f.book(t, otherCustomerUser, takenSlot)

	tests := []struct {
		name       string
		bookingID  int64
		newSlot    int64
		customerID int64
		want       error
	}{
		{"missing booking", 999, takenSlot, customerUser, errors.ErrNotFound},
		{"not the owner", b.ID, foreignSlot, otherCustomerUser, errors.ErrForbidden},
		{"same slot", b.ID, oldSlot, customerUser, errors.ErrBadRequest},
		{"missing slot", b.ID, 999, customerUser, errors.ErrNotFound},
		{"slot taken", b.ID, takenSlot, customerUser, errors.ErrSlotUnavailable},
		{"other vendor", b.ID, foreignSlot, customerUser, errors.ErrVendorMismatch},
		{"slot scoped to other service", b.ID, scopedSlot, customerUser, errors.ErrServiceVendorMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RescheduleBooking(f.ctx, tt.bookingID, tt.newSlot, tt.customerID)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	current, ok := f.store.BookingSnapshot(b.ID)
	require.True(t, ok)
	assert.Equal(t, oldSlot, current.SlotID)
	assert.False(t, f.available(t, oldSlot))
}

func TestRescheduleTerminalBooking(t *testing.T) {
	for _, target := range []model.BookingStatus{
		model.BookingStatusCompleted,
		model.BookingStatusCancelled,
		model.BookingStatusRejected,
	} {
		t.Run(string(target), func(t *testing.T) {
			f := newFixture(t)
			oldSlot := f.slot(t, vendorID, nil, "2099-05-04", "10:00:00")
			newSlot := f.slot(t, vendorID, nil, "2099-05-04", "11:00:00")
			b := f.book(t, customerUser, oldSlot)
			driveTo(t, f, b.ID, target)

			_, err := f.svc.RescheduleBooking(f.ctx, b.ID, newSlot, customerUser)
			assert.ErrorIs(t, err, errors.ErrInvalidTransition)
			assert.True(t, f.available(t, newSlot))
		})
	}
}

func TestRescheduleIsAtomic(t *testing.T) {
	for _, op := range []string{memory.OpSlotRelease, memory.OpBookingReassign, memory.OpOutboxCreate} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			oldSlot := f.slot(t, vendorID, nil, "2099-05-05", "10:00:00")
			newSlot := f.slot(t, vendorID, nil, "2099-05-05", "11:00:00")
			b := f.book(t, customerUser, oldSlot)
			_, err := f.svc.UpdateBookingStatus(f.ctx, b.ID, "accepted", vendor)
			require.NoError(t, err)
			eventsBefore := len(f.store.OutboxEvents())

			f.store.FailOn(op, stderrors.New("connection reset"))
			_, err = f.svc.RescheduleBooking(f.ctx, b.ID, newSlot, customerUser)
			assert.ErrorIs(t, err, errors.ErrTransactionAborted)

			current, ok := f.store.BookingSnapshot(b.ID)
			require.True(t, ok)
			assert.Equal(t, oldSlot, current.SlotID)
			assert.Equal(t, model.BookingStatusAccepted, current.Status)
			assert.False(t, f.available(t, oldSlot))
			assert.True(t, f.available(t, newSlot))
			assert.Len(t, f.store.OutboxEvents(), eventsBefore)
		})
	}
}

func TestGetBookingAccess(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, vendorID, nil, "2099-06-01", "10:00:00")
	b := f.book(t, customerUser, slotID)

	for _, actor := range []model.Actor{customer, vendor, admin} {
		got, err := f.svc.GetBooking(f.ctx, b.ID, actor)
		require.NoError(t, err, "role %s", actor.Role)
		assert.Equal(t, b.ID, got.ID)
	}
	for _, actor := range []model.Actor{otherCustomer, otherVendor} {
		_, err := f.svc.GetBooking(f.ctx, b.ID, actor)
		assert.ErrorIs(t, err, errors.ErrForbidden)
	}
}

func TestListBookingsScoping(t *testing.T) {
	f := newFixture(t)
	s1 := f.slot(t, vendorID, nil, "2099-06-02", "09:00:00")
	s2 := f.slot(t, vendorID, nil, "2099-06-03", "09:00:00")
	s3 := f.slot(t, otherVendorID, nil, "2099-06-04", "09:00:00")
	mine := f.book(t, customerUser, s1)
	theirs := f.book(t, otherCustomerUser, s2)
	foreign, err := f.svc.CreateBooking(f.ctx, customerUser, foreignService, s3)
	require.NoError(t, err)

	ids := func(bs []*model.Booking) []int64 {
		out := make([]int64, 0, len(bs))
		for _, b := range bs {
			out = append(out, b.ID)
		}
		return out
	}

	got, err := f.svc.ListBookings(f.ctx, customer, model.BookingFilter{CustomerID: int64Ptr(otherCustomerUser)})
	require.NoError(t, err)
	assert.Equal(t, []int64{foreign.ID, mine.ID}, ids(got), "newest slot first, scoped to caller")

	got, err = f.svc.ListBookings(f.ctx, vendor, model.BookingFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{theirs.ID, mine.ID}, ids(got))

	pending := model.BookingStatusPending
	got, err = f.svc.ListBookings(f.ctx, admin, model.BookingFilter{Status: &pending, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.svc.ListBookings(f.ctx, model.Actor{UserID: 555, Role: model.RoleVendor}, model.BookingFilter{})
	assert.ErrorIs(t, err, errors.ErrForbidden)
}

func TestCreateBookingHonoursCancelledContext(t *testing.T) {
	f := newFixture(t)
	slotID := f.slot(t, vendorID, nil, "2099-06-05", "10:00:00")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.CreateBooking(ctx, customerUser, serviceID, slotID)
	assert.ErrorIs(t, err, errors.ErrTransactionAborted)
	assert.True(t, f.available(t, slotID))
}
