package domain

import "time"

// Customer is referenced by tickets. The core only reads customers; their
// lifecycle is managed elsewhere.
type Customer struct {
	ID        string
	CompanyID string
	Name      string
	Phone     string
	Channel   string
	CreatedAt time.Time
}
