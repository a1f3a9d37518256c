package model

import "time"

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusSuccess   PaymentStatus = "success"
	PaymentStatusFailed    PaymentStatus = "failed"
)

const DefaultPaymentMethod = "card"

// MaxPaymentAmount is the exclusive upper bound of a NUMERIC(10,2) amount.
const MaxPaymentAmount = 100000000

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch st := PaymentStatus(s); st {
	case PaymentStatusInitiated, PaymentStatusSuccess, PaymentStatusFailed:
		return st, true
	}
	return "", false
}

// Final payments accept no further status writes.
func (s PaymentStatus) Final() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

type Payment struct {
	ID             int64         `db:"id" json:"id"`
	BookingID      int64         `db:"booking_id" json:"booking_id"`
	Amount         float64       `db:"amount" json:"amount"`
	Method         string        `db:"method" json:"method"`
	Status         PaymentStatus `db:"status" json:"status"`
	TransactionRef *string       `db:"transaction_ref" json:"transaction_ref,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

type InitiatePaymentRequest struct {
	Amount *float64 `json:"amount" binding:"omitempty,gt=0,lt=100000000"`
	Method string   `json:"method" binding:"omitempty,oneof=card upi wallet cash"`
}

type UpdatePaymentStatusRequest struct {
	Status         string  `json:"status" binding:"required,oneof=initiated success failed"`
	TransactionRef *string `json:"transaction_ref"`
}
