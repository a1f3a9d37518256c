package model

// AvailabilitySlot is a bookable time window owned by a vendor.
// SlotDate is YYYY-MM-DD, StartTime/EndTime are HH:MM:SS.
type AvailabilitySlot struct {
	ID          int64  `db:"id" json:"id"`
	VendorID    int64  `db:"vendor_id" json:"vendor_id"`
	ServiceID   *int64 `db:"service_id" json:"service_id,omitempty"`
	SlotDate    string `db:"slot_date" json:"slot_date"`
	StartTime   string `db:"start_time" json:"start_time"`
	EndTime     string `db:"end_time" json:"end_time"`
	IsAvailable bool   `db:"is_available" json:"is_available"`
}

// SlotFilter narrows ListSlots. FromDate empty means today.
type SlotFilter struct {
	VendorID      *int64
	ServiceID     *int64
	FromDate      string
	IncludeBooked bool
}

const SlotListLimit = 100

type CreateSlotRequest struct {
	ServiceID *int64 `json:"service_id"`
	SlotDate  string `json:"slot_date" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
}
