package model

// Service is the subset of the catalog row the booking core reads.
type Service struct {
	ID       int64   `db:"id" json:"id"`
	VendorID int64   `db:"vendor_id" json:"vendor_id"`
	Title    string  `db:"title" json:"title"`
	Price    float64 `db:"price" json:"price"`
}

type Vendor struct {
	ID           int64  `db:"id" json:"id"`
	UserID       int64  `db:"user_id" json:"user_id"`
	BusinessName string `db:"business_name" json:"business_name"`
}

type User struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}
