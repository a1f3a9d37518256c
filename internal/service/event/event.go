package event

import "github.com/servicebook/booking-api/internal/model"

// Event types written to the outbox
const (
	BookingCreated       = "booking.created"
	BookingStatusChanged = "booking.status_changed"
	BookingRescheduled   = "booking.rescheduled"
	PaymentInitiated     = "payment.initiated"
	PaymentUpdated       = "payment.updated"
)

// Types lists every event type, in the order subscribers register them.
var Types = []string{
	BookingCreated,
	BookingStatusChanged,
	BookingRescheduled,
	PaymentInitiated,
	PaymentUpdated,
}

type BookingCreatedPayload struct {
	BookingID  int64 `json:"booking_id"`
	CustomerID int64 `json:"customer_id"`
	ServiceID  int64 `json:"service_id"`
	SlotID     int64 `json:"slot_id"`
	VendorID   int64 `json:"vendor_id"`
}

type BookingStatusChangedPayload struct {
	BookingID   int64               `json:"booking_id"`
	CustomerID  int64               `json:"customer_id"`
	From        model.BookingStatus `json:"from"`
	To          model.BookingStatus `json:"to"`
	SlotID      int64               `json:"slot_id"`
	SlotFreed   bool                `json:"slot_freed"`
	ActorUserID int64               `json:"actor_user_id"`
	ActorRole   model.Role          `json:"actor_role"`
}

type BookingRescheduledPayload struct {
	BookingID  int64               `json:"booking_id"`
	CustomerID int64               `json:"customer_id"`
	From       model.BookingStatus `json:"from"`
	OldSlotID  int64               `json:"old_slot_id"`
	NewSlotID  int64               `json:"new_slot_id"`
}

type PaymentPayload struct {
	PaymentID  int64               `json:"payment_id"`
	BookingID  int64               `json:"booking_id"`
	CustomerID int64               `json:"customer_id"`
	Amount     float64             `json:"amount"`
	Method     string              `json:"method"`
	Status     model.PaymentStatus `json:"status"`
}
