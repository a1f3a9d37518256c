package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/servicebook/booking-api/internal/model"
)

type catalogRepository struct {
	ext sqlx.ExtContext
}

func (r *catalogRepository) GetService(ctx context.Context, id int64) (*model.Service, error) {
	var svc model.Service
	err := sqlx.GetContext(ctx, r.ext, &svc,
		`SELECT id, vendor_id, title, price FROM services WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &svc, nil
}

func (r *catalogRepository) GetVendor(ctx context.Context, id int64) (*model.Vendor, error) {
	var vendor model.Vendor
	err := sqlx.GetContext(ctx, r.ext, &vendor,
		`SELECT id, user_id, business_name FROM vendors WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &vendor, nil
}

func (r *catalogRepository) GetVendorIDByUserID(ctx context.Context, userID int64) (int64, error) {
	var id int64
	if err := sqlx.GetContext(ctx, r.ext, &id, `SELECT id FROM vendors WHERE user_id = $1`, userID); err != nil {
		return 0, notFound(err)
	}
	return id, nil
}

func (r *catalogRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := sqlx.GetContext(ctx, r.ext, &user, `SELECT id, name, email FROM users WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}
