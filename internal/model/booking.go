package model

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusAccepted  BookingStatus = "accepted"
	BookingStatusRejected  BookingStatus = "rejected"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// ParseBookingStatus reports false for anything outside the enum.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch st := BookingStatus(s); st {
	case BookingStatusPending, BookingStatusAccepted, BookingStatusRejected,
		BookingStatusCompleted, BookingStatusCancelled:
		return st, true
	}
	return "", false
}

// Terminal statuses never transition again.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusRejected || s == BookingStatusCancelled
}

// HoldsSlot reports whether a booking in this status keeps its slot claimed.
func (s BookingStatus) HoldsSlot() bool {
	return s == BookingStatusPending || s == BookingStatusAccepted
}

// Booking row plus the denormalized fields assembled by the read join.
type Booking struct {
	ID          int64         `db:"id" json:"id"`
	CustomerID  int64         `db:"customer_id" json:"customer_id"`
	ServiceID   int64         `db:"service_id" json:"service_id"`
	SlotID      int64         `db:"slot_id" json:"slot_id"`
	Status      BookingStatus `db:"status" json:"status"`
	BookingDate time.Time     `db:"booking_date" json:"booking_date"`

	CustomerName  string   `db:"customer_name" json:"customer_name"`
	CustomerEmail string   `db:"customer_email" json:"customer_email"`
	ServiceTitle  string   `db:"service_title" json:"service_title"`
	ServicePrice  float64  `db:"service_price" json:"service_price"`
	VendorID      int64    `db:"vendor_id" json:"vendor_id"`
	VendorName    string   `db:"vendor_name" json:"vendor_name"`
	SlotDate      string   `db:"slot_date" json:"slot_date"`
	StartTime     string   `db:"start_time" json:"start_time"`
	EndTime       string   `db:"end_time" json:"end_time"`
	PaymentStatus *string  `db:"payment_status" json:"payment_status,omitempty"`
	PaymentAmount *float64 `db:"payment_amount" json:"payment_amount,omitempty"`
}

type BookingFilter struct {
	CustomerID *int64
	VendorID   *int64
	Status     *BookingStatus
	Limit      int
}

const (
	DefaultBookingListLimit = 50
	MaxBookingListLimit     = 100
)

type CreateBookingRequest struct {
	ServiceID     int64   `json:"service_id" binding:"required,gt=0"`
	SlotID        int64   `json:"slot_id" binding:"required,gt=0"`
	PaymentMethod *string `json:"payment_method" binding:"omitempty,oneof=card upi wallet cash"`
}

type UpdateBookingStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type RescheduleBookingRequest struct {
	NewSlotID int64 `json:"new_slot_id" binding:"required,gt=0"`
}
