package booking

import (
	"context"
	"fmt"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository"
	"github.com/servicebook/booking-api/internal/service/event"
	"github.com/servicebook/booking-api/pkg/errors"
	"github.com/servicebook/booking-api/pkg/logger"
	"github.com/servicebook/booking-api/pkg/metrics"
)

type Service struct {
	store   repository.Store
	catalog repository.CatalogRepository
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewService wires the booking service. catalog may be a caching decorator
// over store.Catalog(); nil falls back to the store.
func NewService(store repository.Store, catalog repository.CatalogRepository, m *metrics.Metrics, log *logger.Logger) *Service {
	if catalog == nil {
		catalog = store.Catalog()
	}
	return &Service{
		store:   store,
		catalog: catalog,
		metrics: m,
		logger:  log,
	}
}

// CreateBooking claims slotID for the customer and records a pending booking.
func (s *Service) CreateBooking(ctx context.Context, customerID, serviceID, slotID int64) (*model.Booking, error) {
	slot, err := s.store.Slots().Get(ctx, slotID)
	if err != nil {
		return nil, lookupErr("slot", err)
	}
	if !slot.IsAvailable {
		return nil, errors.SlotUnavailable("slot is no longer available")
	}

	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return nil, lookupErr("service", err)
	}
	if svc.VendorID != slot.VendorID {
		return nil, errors.ServiceVendorMismatch("service is not offered by the slot's vendor")
	}
	if slot.ServiceID != nil && *slot.ServiceID != svc.ID {
		return nil, errors.ServiceVendorMismatch("slot is reserved for a different service")
	}

	var bookingID int64
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		claimed, err := tx.Slots().Claim(ctx, slotID)
		if err != nil {
			return err
		}
		if !claimed {
			s.metrics.SlotClaimConflicts.Inc()
			return errors.SlotUnavailable("slot is no longer available")
		}

		b := &model.Booking{
			CustomerID: customerID,
			ServiceID:  serviceID,
			SlotID:     slotID,
			Status:     model.BookingStatusPending,
		}
		if err := tx.Bookings().Create(ctx, b); err != nil {
			return err
		}
		bookingID = b.ID

		return event.Emit(ctx, tx.Outbox(), event.BookingCreated, event.BookingCreatedPayload{
			BookingID:  b.ID,
			CustomerID: customerID,
			ServiceID:  serviceID,
			SlotID:     slotID,
			VendorID:   slot.VendorID,
		})
	})
	s.metrics.Observe("create_booking", err)
	if err != nil {
		return nil, s.abort(ctx, err)
	}

	s.logger.WithContext(ctx).Info("Booking created", "booking_id", bookingID, "slot_id", slotID, "customer_id", customerID)
	return s.load(ctx, bookingID)
}

// UpdateBookingStatus applies an accept, reject, complete or cancel action.
func (s *Service) UpdateBookingStatus(ctx context.Context, bookingID int64, newStatus string, actor model.Actor) (*model.Booking, error) {
	to, ok := model.ParseBookingStatus(newStatus)
	if !ok {
		return nil, errors.BadRequest(fmt.Sprintf("invalid booking status %q", newStatus), nil)
	}

	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(ctx, s.catalog, b, actor); err != nil {
		return nil, err
	}

	if _, err := Decide(b.Status, to, actor.Role); err != nil {
		return nil, err
	}

	// decide again from the locked row; a concurrent reschedule may have
	// moved the booking to another slot since it was read
	var from model.BookingStatus
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		current, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		effect, err := Decide(current.Status, to, actor.Role)
		if err != nil {
			return err
		}
		from = current.Status
		return ApplyTransition(ctx, tx, current, to, effect, actor)
	})
	s.metrics.Observe("update_booking_status", err)
	if err != nil {
		return nil, s.abort(ctx, err)
	}

	s.metrics.BookingTransitions.WithLabelValues(string(from), string(to)).Inc()
	s.logger.WithContext(ctx).Info("Booking status changed",
		"booking_id", bookingID,
		"from", string(from),
		"to", string(to),
		"actor_role", string(actor.Role))
	return s.load(ctx, bookingID)
}

// RescheduleBooking moves the customer's booking to newSlotID and resets it to pending.
func (s *Service) RescheduleBooking(ctx context.Context, bookingID, newSlotID, customerID int64) (*model.Booking, error) {
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != customerID {
		return nil, errors.Forbidden("only the booking's customer can reschedule it")
	}
	if b.Status.Terminal() {
		return nil, errors.InvalidTransition(fmt.Sprintf("cannot reschedule a %s booking", b.Status))
	}
	if newSlotID == b.SlotID {
		return nil, errors.BadRequest("booking already uses this slot", nil)
	}

	slot, err := s.store.Slots().Get(ctx, newSlotID)
	if err != nil {
		return nil, lookupErr("slot", err)
	}
	if !slot.IsAvailable {
		return nil, errors.SlotUnavailable("slot is no longer available")
	}
	if slot.VendorID != b.VendorID {
		return nil, errors.VendorMismatch("new slot belongs to a different vendor")
	}
	if slot.ServiceID != nil && *slot.ServiceID != b.ServiceID {
		return nil, errors.ServiceVendorMismatch("slot is reserved for a different service")
	}

	var (
		from    model.BookingStatus
		oldSlot int64
	)
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		current, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return errors.InvalidTransition(fmt.Sprintf("cannot reschedule a %s booking", current.Status))
		}
		if current.SlotID == newSlotID {
			return errors.BadRequest("booking already uses this slot", nil)
		}

		claimed, err := tx.Slots().Claim(ctx, newSlotID)
		if err != nil {
			return err
		}
		if !claimed {
			s.metrics.SlotClaimConflicts.Inc()
			return errors.SlotUnavailable("slot is no longer available")
		}
		if err := tx.Slots().Release(ctx, current.SlotID); err != nil {
			return err
		}

		moved, err := tx.Bookings().Reassign(ctx, current.ID, current.Status, current.SlotID, newSlotID)
		if err != nil {
			return err
		}
		if !moved {
			return errors.InvalidTransition("booking was modified concurrently")
		}
		from, oldSlot = current.Status, current.SlotID

		return event.Emit(ctx, tx.Outbox(), event.BookingRescheduled, event.BookingRescheduledPayload{
			BookingID:  current.ID,
			CustomerID: current.CustomerID,
			From:       current.Status,
			OldSlotID:  current.SlotID,
			NewSlotID:  newSlotID,
		})
	})
	s.metrics.Observe("reschedule_booking", err)
	if err != nil {
		return nil, s.abort(ctx, err)
	}

	if from != model.BookingStatusPending {
		s.metrics.BookingTransitions.WithLabelValues(string(from), string(model.BookingStatusPending)).Inc()
	}
	s.logger.WithContext(ctx).Info("Booking rescheduled", "booking_id", bookingID, "old_slot_id", oldSlot, "new_slot_id", newSlotID)
	return s.load(ctx, bookingID)
}

func (s *Service) GetBooking(ctx context.Context, bookingID int64, actor model.Actor) (*model.Booking, error) {
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(ctx, s.catalog, b, actor); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBookings scopes customers to their own bookings and vendors to their vendor profile.
func (s *Service) ListBookings(ctx context.Context, actor model.Actor, filter model.BookingFilter) ([]*model.Booking, error) {
	if filter.Limit <= 0 {
		filter.Limit = model.DefaultBookingListLimit
	}
	if filter.Limit > model.MaxBookingListLimit {
		filter.Limit = model.MaxBookingListLimit
	}

	switch {
	case actor.Role.Privileged():
	case actor.Role == model.RoleCustomer:
		customerID := actor.UserID
		filter.CustomerID = &customerID
		filter.VendorID = nil
	case actor.Role == model.RoleVendor:
		vendorID, err := s.catalog.GetVendorIDByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, errors.Forbidden("no vendor profile for this user")
			}
			return nil, errors.Internal(fmt.Errorf("failed to resolve vendor: %w", err))
		}
		filter.VendorID = &vendorID
	default:
		return nil, errors.Forbidden("role cannot list bookings")
	}

	bookings, err := s.store.Bookings().List(ctx, filter)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return bookings, nil
}

func (s *Service) load(ctx context.Context, bookingID int64) (*model.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, lookupErr("booking", err)
	}
	return b, nil
}

// abort maps an error returned from a booking transaction. Domain errors pass
// through unchanged; a unique violation on the active-slot index means a
// concurrent booking won the slot.
func (s *Service) abort(ctx context.Context, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrDuplicate) {
		s.metrics.SlotClaimConflicts.Inc()
		return errors.SlotUnavailable("slot is no longer available")
	}
	s.logger.WithContext(ctx).Error(err, "Booking transaction aborted")
	return errors.TransactionAborted(err)
}

// ApplyTransition writes a decided status change inside tx: the guarded status
// update, the slot release when effect asks for it, and the outbox event.
func ApplyTransition(ctx context.Context, tx repository.Tx, b *model.Booking, to model.BookingStatus, effect Effect, actor model.Actor) error {
	updated, err := tx.Bookings().UpdateStatus(ctx, b.ID, b.Status, to)
	if err != nil {
		return err
	}
	if !updated {
		return errors.InvalidTransition("booking status changed concurrently")
	}

	if effect == EffectReleaseSlot {
		if err := tx.Slots().Release(ctx, b.SlotID); err != nil {
			return err
		}
	}

	return event.Emit(ctx, tx.Outbox(), event.BookingStatusChanged, event.BookingStatusChangedPayload{
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		From:        b.Status,
		To:          to,
		SlotID:      b.SlotID,
		SlotFreed:   effect == EffectReleaseSlot,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
	})
}

// Authorize checks that actor may read or act on b. b must carry VendorID.
func Authorize(ctx context.Context, catalog repository.CatalogRepository, b *model.Booking, actor model.Actor) error {
	switch actor.Role {
	case model.RoleAdmin, model.RoleSystem:
		return nil
	case model.RoleCustomer:
		if b.CustomerID == actor.UserID {
			return nil
		}
	case model.RoleVendor:
		vendor, err := catalog.GetVendor(ctx, b.VendorID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errors.Forbidden("not allowed to act on this booking")
			}
			return errors.Internal(fmt.Errorf("failed to load vendor: %w", err))
		}
		if vendor.UserID == actor.UserID {
			return nil
		}
	}
	return errors.Forbidden("not allowed to act on this booking")
}

func lookupErr(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errors.NotFound(resource, err)
	}
	return errors.Internal(fmt.Errorf("failed to load %s: %w", resource, err))
}
