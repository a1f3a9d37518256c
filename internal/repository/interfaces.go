package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/servicebook/booking-api/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file
type (
	// SlotRepository handles availability slot rows
	SlotRepository interface {
		List(ctx context.Context, filter model.SlotFilter) ([]*model.AvailabilitySlot, error)
		Get(ctx context.Context, id int64) (*model.AvailabilitySlot, error)
		GetForUpdate(ctx context.Context, id int64) (*model.AvailabilitySlot, error)
		Create(ctx context.Context, slot *model.AvailabilitySlot) error
		Delete(ctx context.Context, id int64) error
		// Claim flips an available slot to unavailable; false when it was already taken.
		Claim(ctx context.Context, id int64) (bool, error)
		Release(ctx context.Context, id int64) error
		CountActiveBookings(ctx context.Context, slotID int64) (int, error)
	}

	// BookingRepository handles booking rows. Get and List return the hydrated read model.
	BookingRepository interface {
		Create(ctx context.Context, booking *model.Booking) error
		Get(ctx context.Context, id int64) (*model.Booking, error)
		GetForUpdate(ctx context.Context, id int64) (*model.Booking, error)
		List(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, error)
		// UpdateStatus only writes when the row is still in status from.
		UpdateStatus(ctx context.Context, id int64, from, to model.BookingStatus) (bool, error)
		// Reassign moves the booking from oldSlotID to newSlotID and resets it to
		// pending. It reports false when the status or slot no longer match.
		Reassign(ctx context.Context, id int64, from model.BookingStatus, oldSlotID, newSlotID int64) (bool, error)
	}

	PaymentRepository interface {
		Create(ctx context.Context, payment *model.Payment) error
		GetByBooking(ctx context.Context, bookingID int64) (*model.Payment, error)
		GetByBookingForUpdate(ctx context.Context, bookingID int64) (*model.Payment, error)
		UpdateStatus(ctx context.Context, id int64, status model.PaymentStatus, transactionRef *string) error
	}

	// CatalogRepository reads the service, vendor and user rows owned by other modules
	CatalogRepository interface {
		GetService(ctx context.Context, id int64) (*model.Service, error)
		GetVendor(ctx context.Context, id int64) (*model.Vendor, error)
		GetVendorIDByUserID(ctx context.Context, userID int64) (int64, error)
		GetUser(ctx context.Context, id int64) (*model.User, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// Tx exposes repositories bound to one unit of work
	Tx interface {
		Slots() SlotRepository
		Bookings() BookingRepository
		Payments() PaymentRepository
		Catalog() CatalogRepository
		Outbox() OutboxRepository
	}

	// Store is the entry point to persistence. Its repositories run outside a
	// transaction; WithTx commits when fn returns nil and rolls back otherwise.
	Store interface {
		Tx
		WithTx(ctx context.Context, fn func(Tx) error) error
		Ping(ctx context.Context) error
	}
)
