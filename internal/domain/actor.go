package domain

// Role enumerates staff roles recognized by the core. Role definitions and
// assignment live in the external auth system; the core only reads them off
// the verified token.
type Role string

const (
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Actor is the authenticated caller of a request: a staff user scoped to a
// company.
type Actor struct {
	UserID    string
	CompanyID string
	Role      Role
}
