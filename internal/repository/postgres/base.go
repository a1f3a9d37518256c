package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/servicebook/booking-api/internal/repository"
)

const uniqueViolation = "23505"

// queries binds the repositories to either the pool or an open transaction
type queries struct {
	ext sqlx.ExtContext
}

func (q queries) Slots() repository.SlotRepository {
	return &slotRepository{ext: q.ext}
}

func (q queries) Bookings() repository.BookingRepository {
	return &bookingRepository{ext: q.ext}
}

func (q queries) Payments() repository.PaymentRepository {
	return &paymentRepository{ext: q.ext}
}

func (q queries) Catalog() repository.CatalogRepository {
	return &catalogRepository{ext: q.ext}
}

func (q queries) Outbox() repository.OutboxRepository {
	return &outboxRepository{ext: q.ext}
}

// Store is the Postgres implementation of repository.Store
type Store struct {
	queries
	db *sqlx.DB
}

// NewStore creates a store over an open connection pool
func NewStore(db *sqlx.DB) *Store {
	return &Store{queries: queries{ext: db}, db: db}
}

// GetDB returns the database instance
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes a function within a transaction
func (s *Store) WithTx(ctx context.Context, fn func(repository.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(queries{ext: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
