// Package memory is an in-process repository.Store. Transactions are
// serialized and roll back by restoring a snapshot, which makes it suitable
// for service and handler tests that exercise atomicity.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository"
)

// Operation names accepted by FailOn
const (
	OpSlotClaim       = "slots.claim"
	OpSlotRelease     = "slots.release"
	OpSlotDelete      = "slots.delete"
	OpBookingCreate   = "bookings.create"
	OpBookingStatus   = "bookings.update_status"
	OpBookingReassign = "bookings.reassign"
	OpPaymentCreate   = "payments.create"
	OpPaymentStatus   = "payments.update_status"
	OpOutboxCreate    = "outbox.create"
)

type state struct {
	slots    map[int64]model.AvailabilitySlot
	bookings map[int64]model.Booking
	payments map[int64]model.Payment
	services map[int64]model.Service
	vendors  map[int64]model.Vendor
	users    map[int64]model.User
	outbox   []model.OutboxEvent

	nextSlotID    int64
	nextBookingID int64
	nextPaymentID int64
}

func newState() *state {
	return &state{
		slots:    make(map[int64]model.AvailabilitySlot),
		bookings: make(map[int64]model.Booking),
		payments: make(map[int64]model.Payment),
		services: make(map[int64]model.Service),
		vendors:  make(map[int64]model.Vendor),
		users:    make(map[int64]model.User),
	}
}

func (s *state) clone() *state {
	c := &state{
		slots:         make(map[int64]model.AvailabilitySlot, len(s.slots)),
		bookings:      make(map[int64]model.Booking, len(s.bookings)),
		payments:      make(map[int64]model.Payment, len(s.payments)),
		services:      s.services,
		vendors:       s.vendors,
		users:         s.users,
		outbox:        append([]model.OutboxEvent(nil), s.outbox...),
		nextSlotID:    s.nextSlotID,
		nextBookingID: s.nextBookingID,
		nextPaymentID: s.nextPaymentID,
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// Store implements repository.Store in memory
type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error
}

func NewStore() *Store {
	return &Store{
		st:       newState(),
		failures: make(map[string]error),
	}
}

var _ repository.Store = (*Store)(nil)

// FailOn makes every later call of op return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	committed := false
	defer func() {
		if !committed {
			s.st = snapshot
		}
	}()

	if err := fn(view{s: s, inTx: true}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) Slots() repository.SlotRepository       { return view{s: s}.Slots() }
func (s *Store) Bookings() repository.BookingRepository { return view{s: s}.Bookings() }
func (s *Store) Payments() repository.PaymentRepository { return view{s: s}.Payments() }
func (s *Store) Catalog() repository.CatalogRepository  { return view{s: s}.Catalog() }
func (s *Store) Outbox() repository.OutboxRepository    { return view{s: s}.Outbox() }

// Seeding helpers for the catalog rows owned by other modules

func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

func (s *Store) AddVendor(v model.Vendor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.vendors[v.ID] = v
}

func (s *Store) AddService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.services[svc.ID] = svc
}

// SlotSnapshot returns the raw slot row, for assertions.
func (s *Store) SlotSnapshot(id int64) (model.AvailabilitySlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.st.slots[id]
	return slot, ok
}

// BookingSnapshot returns the raw booking row, for assertions.
func (s *Store) BookingSnapshot(id int64) (model.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.bookings[id]
	return b, ok
}

// OutboxEvents returns a copy of every recorded event.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OutboxEvent(nil), s.st.outbox...)
}

// view is a set of repositories; inTx means the store lock is already held.
type view struct {
	s    *Store
	inTx bool
}

func (v view) Slots() repository.SlotRepository       { return slotRepo{v} }
func (v view) Bookings() repository.BookingRepository { return bookingRepo{v} }
func (v view) Payments() repository.PaymentRepository { return paymentRepo{v} }
func (v view) Catalog() repository.CatalogRepository  { return catalogRepo{v} }
func (v view) Outbox() repository.OutboxRepository    { return outboxRepo{v} }

func (v view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v view) fail(op string) error {
	return v.s.failures[op]
}

type slotRepo struct{ view }

func (r slotRepo) List(ctx context.Context, filter model.SlotFilter) ([]*model.AvailabilitySlot, error) {
	defer r.lock()()
	st := r.s.st

	from := filter.FromDate
	if from == "" {
		from = time.Now().Format("2006-01-02")
	}

	var serviceVendor int64
	if filter.ServiceID != nil {
		if svc, ok := st.services[*filter.ServiceID]; ok {
			serviceVendor = svc.VendorID
		}
	}

	out := []*model.AvailabilitySlot{}
	for _, slot := range st.slots {
		if slot.SlotDate < from {
			continue
		}
		if filter.VendorID != nil && slot.VendorID != *filter.VendorID {
			continue
		}
		if filter.ServiceID != nil {
			scoped := slot.ServiceID != nil && *slot.ServiceID == *filter.ServiceID
			unscoped := slot.ServiceID == nil && slot.VendorID == serviceVendor
			if !scoped && !unscoped {
				continue
			}
		}
		if !filter.IncludeBooked && !slot.IsAvailable {
			continue
		}
		slot := slot
		out = append(out, &slot)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SlotDate != out[j].SlotDate {
			return out[i].SlotDate < out[j].SlotDate
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > model.SlotListLimit {
		out = out[:model.SlotListLimit]
	}
	return out, nil
}

func (r slotRepo) Get(ctx context.Context, id int64) (*model.AvailabilitySlot, error) {
	defer r.lock()()
	slot, ok := r.s.st.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &slot, nil
}

func (r slotRepo) GetForUpdate(ctx context.Context, id int64) (*model.AvailabilitySlot, error) {
	return r.Get(ctx, id)
}

func (r slotRepo) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	defer r.lock()()
	st := r.s.st
	st.nextSlotID++
	slot.ID = st.nextSlotID
	slot.IsAvailable = true
	st.slots[slot.ID] = *slot
	return nil
}

func (r slotRepo) Delete(ctx context.Context, id int64) error {
	defer r.lock()()
	if err := r.fail(OpSlotDelete); err != nil {
		return err
	}
	if _, ok := r.s.st.slots[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.slots, id)
	return nil
}

func (r slotRepo) Claim(ctx context.Context, id int64) (bool, error) {
	defer r.lock()()
	if err := r.fail(OpSlotClaim); err != nil {
		return false, err
	}
	slot, ok := r.s.st.slots[id]
	if !ok || !slot.IsAvailable {
		return false, nil
	}
	slot.IsAvailable = false
	r.s.st.slots[id] = slot
	return true, nil
}

func (r slotRepo) Release(ctx context.Context, id int64) error {
	defer r.lock()()
	if err := r.fail(OpSlotRelease); err != nil {
		return err
	}
	if slot, ok := r.s.st.slots[id]; ok {
		slot.IsAvailable = true
		r.s.st.slots[id] = slot
	}
	return nil
}

func (r slotRepo) CountActiveBookings(ctx context.Context, slotID int64) (int, error) {
	defer r.lock()()
	count := 0
	for _, b := range r.s.st.bookings {
		if b.SlotID == slotID && b.Status != model.BookingStatusRejected && b.Status != model.BookingStatusCancelled {
			count++
		}
	}
	return count, nil
}

type bookingRepo struct{ view }

func (r bookingRepo) Create(ctx context.Context, booking *model.Booking) error {
	defer r.lock()()
	if err := r.fail(OpBookingCreate); err != nil {
		return err
	}
	st := r.s.st
	for _, b := range st.bookings {
		if b.SlotID == booking.SlotID && b.Status.HoldsSlot() {
			return repository.ErrDuplicate
		}
	}
	st.nextBookingID++
	booking.ID = st.nextBookingID
	booking.BookingDate = time.Now().UTC()
	st.bookings[booking.ID] = model.Booking{
		ID:          booking.ID,
		CustomerID:  booking.CustomerID,
		ServiceID:   booking.ServiceID,
		SlotID:      booking.SlotID,
		Status:      booking.Status,
		BookingDate: booking.BookingDate,
	}
	return nil
}

func (r bookingRepo) Get(ctx context.Context, id int64) (*model.Booking, error) {
	defer r.lock()()
	b, ok := r.s.st.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.hydrate(b), nil
}

func (r bookingRepo) GetForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	defer r.lock()()
	b, ok := r.s.st.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r bookingRepo) hydrate(b model.Booking) *model.Booking {
	st := r.s.st
	if u, ok := st.users[b.CustomerID]; ok {
		b.CustomerName = u.Name
		b.CustomerEmail = u.Email
	}
	if svc, ok := st.services[b.ServiceID]; ok {
		b.ServiceTitle = svc.Title
		b.ServicePrice = svc.Price
		b.VendorID = svc.VendorID
		if v, ok := st.vendors[svc.VendorID]; ok {
			b.VendorName = v.BusinessName
		}
	}
	if slot, ok := st.slots[b.SlotID]; ok {
		b.SlotDate = slot.SlotDate
		b.StartTime = slot.StartTime
		b.EndTime = slot.EndTime
	}
	for _, p := range st.payments {
		if p.BookingID == b.ID {
			status := string(p.Status)
			amount := p.Amount
			b.PaymentStatus = &status
			b.PaymentAmount = &amount
			break
		}
	}
	return &b
}

func (r bookingRepo) List(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, error) {
	defer r.lock()()
	out := []*model.Booking{}
	for _, b := range r.s.st.bookings {
		h := r.hydrate(b)
		if filter.CustomerID != nil && h.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.VendorID != nil && h.VendorID != *filter.VendorID {
			continue
		}
		if filter.Status != nil && h.Status != *filter.Status {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SlotDate != out[j].SlotDate {
			return out[i].SlotDate > out[j].SlotDate
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime > out[j].StartTime
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r bookingRepo) UpdateStatus(ctx context.Context, id int64, from, to model.BookingStatus) (bool, error) {
	defer r.lock()()
	if err := r.fail(OpBookingStatus); err != nil {
		return false, err
	}
	b, ok := r.s.st.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	r.s.st.bookings[id] = b
	return true, nil
}

func (r bookingRepo) Reassign(ctx context.Context, id int64, from model.BookingStatus, oldSlotID, newSlotID int64) (bool, error) {
	defer r.lock()()
	if err := r.fail(OpBookingReassign); err != nil {
		return false, err
	}
	b, ok := r.s.st.bookings[id]
	if !ok || b.Status != from || b.SlotID != oldSlotID {
		return false, nil
	}
	b.SlotID = newSlotID
	b.Status = model.BookingStatusPending
	r.s.st.bookings[id] = b
	return true, nil
}

type paymentRepo struct{ view }

func (r paymentRepo) Create(ctx context.Context, payment *model.Payment) error {
	defer r.lock()()
	if err := r.fail(OpPaymentCreate); err != nil {
		return err
	}
	st := r.s.st
	for _, p := range st.payments {
		if p.BookingID == payment.BookingID {
			return repository.ErrDuplicate
		}
	}
	st.nextPaymentID++
	now := time.Now().UTC()
	payment.ID = st.nextPaymentID
	payment.CreatedAt = now
	payment.UpdatedAt = now
	st.payments[payment.ID] = *payment
	return nil
}

func (r paymentRepo) find(bookingID int64) (*model.Payment, error) {
	for _, p := range r.s.st.payments {
		if p.BookingID == bookingID {
			p := p
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r paymentRepo) GetByBooking(ctx context.Context, bookingID int64) (*model.Payment, error) {
	defer r.lock()()
	return r.find(bookingID)
}

func (r paymentRepo) GetByBookingForUpdate(ctx context.Context, bookingID int64) (*model.Payment, error) {
	defer r.lock()()
	return r.find(bookingID)
}

func (r paymentRepo) UpdateStatus(ctx context.Context, id int64, status model.PaymentStatus, transactionRef *string) error {
	defer r.lock()()
	if err := r.fail(OpPaymentStatus); err != nil {
		return err
	}
	p, ok := r.s.st.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	if transactionRef != nil {
		p.TransactionRef = transactionRef
	}
	p.UpdatedAt = time.Now().UTC()
	r.s.st.payments[id] = p
	return nil
}

type catalogRepo struct{ view }

func (r catalogRepo) GetService(ctx context.Context, id int64) (*model.Service, error) {
	defer r.lock()()
	svc, ok := r.s.st.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &svc, nil
}

func (r catalogRepo) GetVendor(ctx context.Context, id int64) (*model.Vendor, error) {
	defer r.lock()()
	v, ok := r.s.st.vendors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r catalogRepo) GetVendorIDByUserID(ctx context.Context, userID int64) (int64, error) {
	defer r.lock()()
	for _, v := range r.s.st.vendors {
		if v.UserID == userID {
			return v.ID, nil
		}
	}
	return 0, repository.ErrNotFound
}

func (r catalogRepo) GetUser(ctx context.Context, id int64) (*model.User, error) {
	defer r.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

type outboxRepo struct{ view }

func (r outboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	defer r.lock()()
	if err := r.fail(OpOutboxCreate); err != nil {
		return err
	}
	now := time.Now().UTC()
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = now
	event.UpdatedAt = now
	r.s.st.outbox = append(r.s.st.outbox, *event)
	return nil
}

func (r outboxRepo) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	defer r.lock()()
	now := time.Now()
	out := []*model.OutboxEvent{}
	for i := range r.s.st.outbox {
		e := r.s.st.outbox[i]
		if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		out = append(out, &e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r outboxRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	defer r.lock()()
	for i := range r.s.st.outbox {
		e := &r.s.st.outbox[i]
		if e.ID != id {
			continue
		}
		e.Status = status
		e.ErrorMessage = errorMessage
		e.RetryAt = retryAt
		e.UpdatedAt = time.Now().UTC()
		if status == model.OutboxStatusRetry {
			e.RetryCount++
		}
		if status == model.OutboxStatusProcessed {
			processed := e.UpdatedAt
			e.ProcessedAt = &processed
		}
		return nil
	}
	return repository.ErrNotFound
}

func (r outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	defer r.lock()()
	kept := r.s.st.outbox[:0]
	var deleted int64
	for _, e := range r.s.st.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.s.st.outbox = kept
	return deleted, nil
}
