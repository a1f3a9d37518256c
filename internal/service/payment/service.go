package payment

import (
	"context"
	"fmt"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository"
	"github.com/servicebook/booking-api/internal/service/booking"
	"github.com/servicebook/booking-api/internal/service/event"
	"github.com/servicebook/booking-api/pkg/errors"
	"github.com/servicebook/booking-api/pkg/logger"
	"github.com/servicebook/booking-api/pkg/metrics"
)

// coupled maps a payment outcome to the booking status it drives.
var coupled = map[model.PaymentStatus]model.BookingStatus{
	model.PaymentStatusSuccess: model.BookingStatusAccepted,
	model.PaymentStatusFailed:  model.BookingStatusCancelled,
}

var systemActor = model.Actor{Role: model.RoleSystem}

type Service struct {
	store   repository.Store
	catalog repository.CatalogRepository
	metrics *metrics.Metrics
	logger  *logger.Logger
}

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

// InitiatePayment opens the single payment of a pending booking. amount
// defaults to the service price and method to card.
func (s *Service) InitiatePayment(ctx context.Context, bookingID int64, actor model.Actor, amount *float64, method string) (*model.Payment, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleCustomer && !actor.Role.Privileged() {
		return nil, errors.Forbidden("only the booking's customer can pay for it")
	}
	if err := booking.Authorize(ctx, s.catalog, b, actor); err != nil {
		return nil, err
	}
	if b.Status != model.BookingStatusPending {
		return nil, errors.InvalidTransition(fmt.Sprintf("cannot pay for a %s booking", b.Status))
	}

	p := &model.Payment{
		BookingID: bookingID,
		Amount:    b.ServicePrice,
		Method:    method,
		Status:    model.PaymentStatusInitiated,
	}
	if amount != nil {
		if *amount <= 0 {
			return nil, errors.BadRequest("amount must be positive", nil)
		}
		if *amount >= model.MaxPaymentAmount {
			return nil, errors.BadRequest("amount is too large", nil)
		}
		p.Amount = *amount
	}
	if p.Method == "" {
		p.Method = model.DefaultPaymentMethod
	}

	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.Payments().GetByBooking(ctx, bookingID); err == nil {
			return errors.Conflict("payment already exists for this booking")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if err := tx.Payments().Create(ctx, p); err != nil {
			return err
		}
		return event.Emit(ctx, tx.Outbox(), event.PaymentInitiated, paymentPayload(p, b.CustomerID))
	})
	s.metrics.Observe("initiate_payment", err)
	if err != nil {
		return nil, s.abort(ctx, err)
	}

	s.logger.WithContext(ctx).Info("Payment initiated", "booking_id", bookingID, "payment_id", p.ID, "amount", p.Amount)
	return p, nil
}

// UpdatePaymentStatus records a payment outcome and applies its booking
// coupling in the same transaction: success accepts the booking, failure
// cancels it and frees the slot.
func (s *Service) UpdatePaymentStatus(ctx context.Context, bookingID int64, status string, transactionRef *string, actor model.Actor) (*model.Payment, error) {
	newStatus, ok := model.ParsePaymentStatus(status)
	if !ok {
		return nil, errors.BadRequest(fmt.Sprintf("invalid payment status %q", status), nil)
	}

	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleVendor {
		return nil, errors.Forbidden("vendors cannot update payments")
	}
	if err := booking.Authorize(ctx, s.catalog, b, actor); err != nil {
		return nil, err
	}

	var (
		result     *model.Payment
		transition *[2]model.BookingStatus
	)
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		p, err := tx.Payments().GetByBookingForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errors.NotFound("payment", err)
			}
			return err
		}
		if p.Status.Final() {
			return errors.InvalidTransition(fmt.Sprintf("payment is already %s", p.Status))
		}

		if target, ok := coupled[newStatus]; ok {
			current, err := tx.Bookings().GetForUpdate(ctx, bookingID)
			if err != nil {
				return err
			}
			if current.Status != target {
				effect, err := booking.Decide(current.Status, target, model.RoleSystem)
				if err != nil {
					return err
				}
				if err := booking.ApplyTransition(ctx, tx, current, target, effect, systemActor); err != nil {
					return err
				}
				transition = &[2]model.BookingStatus{current.Status, target}
			}
		}

		if err := tx.Payments().UpdateStatus(ctx, p.ID, newStatus, transactionRef); err != nil {
			return err
		}
		p.Status = newStatus
		if transactionRef != nil {
			p.TransactionRef = transactionRef
		}
		result = p

		return event.Emit(ctx, tx.Outbox(), event.PaymentUpdated, paymentPayload(p, b.CustomerID))
	})
	s.metrics.Observe("update_payment_status", err)
	if err != nil {
		return nil, s.abort(ctx, err)
	}

	if transition != nil {
		s.metrics.BookingTransitions.WithLabelValues(string(transition[0]), string(transition[1])).Inc()
	}
	s.logger.WithContext(ctx).Info("Payment status updated", "booking_id", bookingID, "status", string(newStatus))
	return result, nil
}

func (s *Service) GetPayment(ctx context.Context, bookingID int64, actor model.Actor) (*model.Payment, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := booking.Authorize(ctx, s.catalog, b, actor); err != nil {
		return nil, err
	}

	p, err := s.store.Payments().GetByBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("payment", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to load payment: %w", err))
	}
	return p, nil
}

func (s *Service) loadBooking(ctx context.Context, bookingID int64) (*model.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("booking", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to load booking: %w", err))
	}
	return b, nil
}

func (s *Service) abort(ctx context.Context, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return errors.Conflict("payment already exists for this booking")
	}
	s.logger.WithContext(ctx).Error(err, "Payment transaction aborted")
	return errors.TransactionAborted(err)
}

func paymentPayload(p *model.Payment, customerID int64) event.PaymentPayload {
	return event.PaymentPayload{
		PaymentID:  p.ID,
		BookingID:  p.BookingID,
		CustomerID: customerID,
		Amount:     p.Amount,
		Method:     p.Method,
		Status:     p.Status,
	}
}
