package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository"
)

const paymentColumns = `
	SELECT id, booking_id, amount, method, status, transaction_ref, created_at, updated_at
	FROM payments`

type paymentRepository struct {
	ext sqlx.ExtContext
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	query := `
		INSERT INTO payments (booking_id, amount, method, status, transaction_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := r.ext.QueryRowxContext(ctx, query,
		payment.BookingID,
		payment.Amount,
		payment.Method,
		payment.Status,
		payment.TransactionRef,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByBooking(ctx context.Context, bookingID int64) (*model.Payment, error) {
	var payment model.Payment
	if err := sqlx.GetContext(ctx, r.ext, &payment, paymentColumns+" WHERE booking_id = $1", bookingID); err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (r *paymentRepository) GetByBookingForUpdate(ctx context.Context, bookingID int64) (*model.Payment, error) {
	var payment model.Payment
	if err := sqlx.GetContext(ctx, r.ext, &payment, paymentColumns+" WHERE booking_id = $1 FOR UPDATE", bookingID); err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (r *paymentRepository) UpdateStatus(ctx context.Context, id int64, status model.PaymentStatus, transactionRef *string) error {
	query := `
		UPDATE payments
		SET status = $1,
			transaction_ref = COALESCE($2, transaction_ref),
			updated_at = NOW()
		WHERE id = $3
	`
	res, err := r.ext.ExecContext(ctx, query, status, transactionRef, id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}
