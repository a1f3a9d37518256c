package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository/memory"
	"github.com/servicebook/booking-api/pkg/logger"
	"github.com/servicebook/booking-api/pkg/metrics"
)

const (
	customerUser      int64 = 1
	otherCustomerUser int64 = 2
	vendorUser        int64 = 10
	otherVendorUser   int64 = 20

	vendorID      int64 = 100
	otherVendorID int64 = 200

	serviceID      int64 = 1000
	otherServiceID int64 = 1001
	foreignService int64 = 2000
)

var (
	customer      = model.Actor{UserID: customerUser, Role: model.RoleCustomer}
	otherCustomer = model.Actor{UserID: otherCustomerUser, Role: model.RoleCustomer}
	vendor        = model.Actor{UserID: vendorUser, Role: model.RoleVendor}
	otherVendor   = model.Actor{UserID: otherVendorUser, Role: model.RoleVendor}
	admin         = model.Actor{UserID: 99, Role: model.RoleAdmin}
)

type fixture struct {
	ctx   context.Context
	store *memory.Store
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.AddUser(model.User{ID: customerUser, Name: "Cara Customer", Email: "cara@example.com"})
	store.AddUser(model.User{ID: otherCustomerUser, Name: "Omar Other", Email: "omar@example.com"})
	store.AddUser(model.User{ID: vendorUser, Name: "Vic Vendor", Email: "vic@example.com"})
	store.AddUser(model.User{ID: otherVendorUser, Name: "Wren Vendor", Email: "wren@example.com"})
	store.AddVendor(model.Vendor{ID: vendorID, UserID: vendorUser, BusinessName: "Vic's Plumbing"})
	store.AddVendor(model.Vendor{ID: otherVendorID, UserID: otherVendorUser, BusinessName: "Wren Cleaning"})
	store.AddService(model.Service{ID: serviceID, VendorID: vendorID, Title: "Pipe repair", Price: 80})
	store.AddService(model.Service{ID: otherServiceID, VendorID: vendorID, Title: "Drain cleaning", Price: 45})
	store.AddService(model.Service{ID: foreignService, VendorID: otherVendorID, Title: "Deep clean", Price: 120})

	return &fixture{
		ctx:   context.Background(),
		store: store,
		svc:   NewService(store, nil, metrics.New("test"), logger.Nop()),
	}
}

func (f *fixture) slot(t *testing.T, owner int64, service *int64, date, start string) int64 {
	t.Helper()
	s := &model.AvailabilitySlot{
		VendorID:  owner,
		ServiceID: service,
		SlotDate:  date,
		StartTime: start,
		EndTime:   start[:2] + ":59:00",
	}
	require.NoError(t, f.store.Slots().Create(f.ctx, s))
	return s.ID
}

func (f *fixture) book(t *testing.T, customerID, slotID int64) *model.Booking {
	t.Helper()
	b, err := f.svc.CreateBooking(f.ctx, customerID, serviceID, slotID)
	require.NoError(t, err)
	return b
}

func (f *fixture) available(t *testing.T, slotID int64) bool {
	t.Helper()
	s, ok := f.store.SlotSnapshot(slotID)
	require.True(t, ok, "slot %d missing", slotID)
	return s.IsAvailable
}

func (f *fixture) status(t *testing.T, bookingID int64) model.BookingStatus {
	t.Helper()
	b, ok := f.store.BookingSnapshot(bookingID)
	require.True(t, ok, "booking %d missing", bookingID)
	return b.Status
}

func int64Ptr(v int64) *int64 { return &v }
