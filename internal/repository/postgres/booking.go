package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository"
)

// Slots referenced by cancelled or rejected bookings may be deleted, hence the left join.
const bookingReadColumns = `
	SELECT b.id, b.customer_id, b.service_id, b.slot_id, b.status, b.booking_date,
		u.name AS customer_name,
		u.email AS customer_email,
		sv.title AS service_title,
		sv.price AS service_price,
		v.id AS vendor_id,
		v.business_name AS vendor_name,
		COALESCE(a.slot_date::text, '') AS slot_date,
		COALESCE(a.start_time::text, '') AS start_time,
		COALESCE(a.end_time::text, '') AS end_time,
		p.status AS payment_status,
		p.amount AS payment_amount
	FROM bookings b
	JOIN users u ON u.id = b.customer_id
	JOIN services sv ON sv.id = b.service_id
	JOIN vendors v ON v.id = sv.vendor_id
	LEFT JOIN availability_slots a ON a.id = b.slot_id
	LEFT JOIN payments p ON p.booking_id = b.id`

type bookingRepository struct {
	ext sqlx.ExtContext
}

func (r *bookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (customer_id, service_id, slot_id, status, booking_date)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, booking_date
	`
	err := r.ext.QueryRowxContext(ctx, query,
		booking.CustomerID,
		booking.ServiceID,
		booking.SlotID,
		booking.Status,
	).Scan(&booking.ID, &booking.BookingDate)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *bookingRepository) Get(ctx context.Context, id int64) (*model.Booking, error) {
	var booking model.Booking
	if err := sqlx.GetContext(ctx, r.ext, &booking, bookingReadColumns+" WHERE b.id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return &booking, nil
}

func (r *bookingRepository) GetForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	query := `
		SELECT id, customer_id, service_id, slot_id, status, booking_date
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`
	var booking model.Booking
	if err := sqlx.GetContext(ctx, r.ext, &booking, query, id); err != nil {
		return nil, notFound(err)
	}
	return &booking, nil
}

func (r *bookingRepository) List(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conds = append(conds, fmt.Sprintf("b.customer_id = $%d", len(args)))
	}
	if filter.VendorID != nil {
		args = append(args, *filter.VendorID)
		conds = append(conds, fmt.Sprintf("sv.vendor_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, fmt.Sprintf("b.status = $%d", len(args)))
	}

	query := bookingReadColumns
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY a.slot_date DESC NULLS LAST, a.start_time DESC NULLS LAST LIMIT $%d", len(args))

	bookings := []*model.Booking{}
	if err := sqlx.SelectContext(ctx, r.ext, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id int64, from, to model.BookingStatus) (bool, error) {
	res, err := r.ext.ExecContext(ctx,
		`UPDATE bookings SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	return affected(res)
}

func (r *bookingRepository) Reassign(ctx context.Context, id int64, from model.BookingStatus, oldSlotID, newSlotID int64) (bool, error) {
	res, err := r.ext.ExecContext(ctx,
		`UPDATE bookings SET slot_id = $1, status = 'pending' WHERE id = $2 AND status = $3 AND slot_id = $4`,
		newSlotID, id, from, oldSlotID)
	if err != nil {
		if isUniqueViolation(err) {
			return false, repository.ErrDuplicate
		}
		return false, fmt.Errorf("failed to reassign booking: %w", err)
	}
	return affected(res)
}
