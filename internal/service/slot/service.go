package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository"
	"github.com/servicebook/booking-api/pkg/errors"
	"github.com/servicebook/booking-api/pkg/logger"
	"github.com/servicebook/booking-api/pkg/metrics"
)

const (
	dateLayout  = "2006-01-02"
	timeLayout  = "15:04:05"
	shortLayout = "15:04"
)

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

// Query holds the caller supplied ListSlots parameters.
type Query struct {
	VendorID  *int64
	ServiceID *int64
	FromDate  string
}

// ListSlots returns upcoming available slots. A vendor asking without a
// vendor filter gets its own calendar, booked slots included.
func (s *Service) ListSlots(ctx context.Context, actor *model.Actor, q Query) ([]*model.AvailabilitySlot, error) {
	filter := model.SlotFilter{
		VendorID:  q.VendorID,
		ServiceID: q.ServiceID,
		FromDate:  q.FromDate,
	}
	if filter.FromDate != "" {
		if _, err := time.Parse(dateLayout, filter.FromDate); err != nil {
			return nil, errors.BadRequest("from_date must be YYYY-MM-DD", err)
		}
	}

	if actor != nil && actor.Role == model.RoleVendor && filter.VendorID == nil {
		vendorID, err := s.VendorIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		filter.VendorID = &vendorID
		filter.IncludeBooked = true
	}

	slots, err := s.store.Slots().List(ctx, filter)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return slots, nil
}

// CreateSlot publishes a new available window for vendorID. Overlapping
// windows are allowed.
func (s *Service) CreateSlot(ctx context.Context, vendorID int64, req model.CreateSlotRequest) (*model.AvailabilitySlot, error) {
	date, err := time.Parse(dateLayout, req.SlotDate)
	if err != nil {
		return nil, errors.BadRequest("slot_date must be YYYY-MM-DD", err)
	}
	start, err := parseClock(req.StartTime)
	if err != nil {
		return nil, errors.BadRequest("start_time must be HH:MM or HH:MM:SS", err)
	}
	end, err := parseClock(req.EndTime)
	if err != nil {
		return nil, errors.BadRequest("end_time must be HH:MM or HH:MM:SS", err)
	}
	if !end.After(start) {
		return nil, errors.BadRequest("end_time must be after start_time", nil)
	}

	if req.ServiceID != nil {
		svc, err := s.catalog.GetService(ctx, *req.ServiceID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, errors.NotFound("service", err)
			}
			return nil, errors.Internal(fmt.Errorf("failed to load service: %w", err))
		}
		if svc.VendorID != vendorID {
			return nil, errors.ServiceVendorMismatch("service does not belong to this vendor")
		}
	}

	slot := &model.AvailabilitySlot{
		VendorID:  vendorID,
		ServiceID: req.ServiceID,
		SlotDate:  date.Format(dateLayout),
		StartTime: start.Format(timeLayout),
		EndTime:   end.Format(timeLayout),
	}
	err = s.store.Slots().Create(ctx, slot)
	s.metrics.Observe("create_slot", err)
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.logger.WithContext(ctx).Info("Slot created", "slot_id", slot.ID, "vendor_id", vendorID, "slot_date", slot.SlotDate)
	return slot, nil
}

// DeleteSlot removes a slot of vendorID that no live booking references.
func (s *Service) DeleteSlot(ctx context.Context, slotID, vendorID int64) error {
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		slot, err := tx.Slots().GetForUpdate(ctx, slotID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errors.NotFound("slot", err)
			}
			return err
		}
		if slot.VendorID != vendorID {
			return errors.NotFound("slot", nil)
		}

		active, err := tx.Slots().CountActiveBookings(ctx, slotID)
		if err != nil {
			return err
		}
		if active > 0 {
			return errors.HasActiveBookings("slot has active bookings")
		}
		return tx.Slots().Delete(ctx, slotID)
	})
	s.metrics.Observe("delete_slot", err)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		s.logger.WithContext(ctx).Error(err, "Slot delete aborted", "slot_id", slotID)
		return errors.TransactionAborted(err)
	}

	s.logger.WithContext(ctx).Info("Slot deleted", "slot_id", slotID, "vendor_id", vendorID)
	return nil
}

// VendorIDForUser resolves the vendor profile owned by userID.
func (s *Service) VendorIDForUser(ctx context.Context, userID int64) (int64, error) {
	vendorID, err := s.catalog.GetVendorIDByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, errors.Forbidden("no vendor profile for this user")
		}
		return 0, errors.Internal(fmt.Errorf("failed to resolve vendor: %w", err))
	}
	return vendorID, nil
}

func parseClock(v string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, v); err == nil {
		return t, nil
	}
	return time.Parse(shortLayout, v)
}
