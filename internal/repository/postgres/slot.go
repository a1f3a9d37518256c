package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository"
)

const slotColumns = `
	SELECT s.id, s.vendor_id, s.service_id,
		s.slot_date::text AS slot_date,
		s.start_time::text AS start_time,
		s.end_time::text AS end_time,
		s.is_available
	FROM availability_slots s`

type slotRepository struct {
	ext sqlx.ExtContext
}

func (r *slotRepository) List(ctx context.Context, filter model.SlotFilter) ([]*model.AvailabilitySlot, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter.FromDate != "" {
		args = append(args, filter.FromDate)
		conds = append(conds, fmt.Sprintf("s.slot_date >= $%d", len(args)))
	} else {
		conds = append(conds, "s.slot_date >= CURRENT_DATE")
	}
	if filter.VendorID != nil {
		args = append(args, *filter.VendorID)
		conds = append(conds, fmt.Sprintf("s.vendor_id = $%d", len(args)))
	}
	if filter.ServiceID != nil {
		// unscoped slots of the service's vendor are bookable for the service too
		args = append(args, *filter.ServiceID)
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(s.service_id = $%d OR (s.service_id IS NULL AND s.vendor_id = (SELECT vendor_id FROM services WHERE id = $%d)))", n, n))
	}
	if !filter.IncludeBooked {
		conds = append(conds, "s.is_available = true")
	}

	query := slotColumns + " WHERE " + strings.Join(conds, " AND ") +
		fmt.Sprintf(" ORDER BY s.slot_date ASC, s.start_time ASC LIMIT %d", model.SlotListLimit)

	slots := []*model.AvailabilitySlot{}
	if err := sqlx.SelectContext(ctx, r.ext, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) Get(ctx context.Context, id int64) (*model.AvailabilitySlot, error) {
	var slot model.AvailabilitySlot
	if err := sqlx.GetContext(ctx, r.ext, &slot, slotColumns+" WHERE s.id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return &slot, nil
}

func (r *slotRepository) GetForUpdate(ctx context.Context, id int64) (*model.AvailabilitySlot, error) {
	var slot model.AvailabilitySlot
	if err := sqlx.GetContext(ctx, r.ext, &slot, slotColumns+" WHERE s.id = $1 FOR UPDATE", id); err != nil {
		return nil, notFound(err)
	}
	return &slot, nil
}

func (r *slotRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	query := `
		INSERT INTO availability_slots (vendor_id, service_id, slot_date, start_time, end_time, is_available)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id
	`
	slot.IsAvailable = true
	err := r.ext.QueryRowxContext(ctx, query,
		slot.VendorID,
		slot.ServiceID,
		slot.SlotDate,
		slot.StartTime,
		slot.EndTime,
	).Scan(&slot.ID)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *slotRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.ext.ExecContext(ctx, `DELETE FROM availability_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
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

func (r *slotRepository) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := r.ext.ExecContext(ctx,
		`UPDATE availability_slots SET is_available = false WHERE id = $1 AND is_available = true`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim slot: %w", err)
	}
	return affected(res)
}

func (r *slotRepository) Release(ctx context.Context, id int64) error {
	_, err := r.ext.ExecContext(ctx, `UPDATE availability_slots SET is_available = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	return nil
}

func (r *slotRepository) CountActiveBookings(ctx context.Context, slotID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.ext, &count,
		`SELECT COUNT(*) FROM bookings WHERE slot_id = $1 AND status NOT IN ('rejected', 'cancelled')`, slotID)
	if err != nil {
		return 0, fmt.Errorf("failed to count slot bookings: %w", err)
	}
	return count, nil
}
