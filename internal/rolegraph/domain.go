package rolegraph

import "time"

// Role is a named, reusable bundle of permissions assignable to users.
type Role struct {
	ID           int64
	Name         string
	Description  string
	IsSystemRole bool
	CreatedBy    *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RolePermission is the role→permission edge. A revoked or lapsed edge keeps
// its row with expires_at in the past; queries filter on the timestamp.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
	GrantedBy    *int64
	GrantedAt    time.Time
	ExpiresAt    *time.Time
}

// UserRole is the user→role edge, with the same soft-expiry semantics.
type UserRole struct {
	UserID     int64
	RoleID     int64
	AssignedBy *int64
	AssignedAt time.Time
	ExpiresAt  *time.Time
}

// Active reports whether the edge grants at the given instant.
func (rp RolePermission) Active(at time.Time) bool {
	return rp.ExpiresAt == nil || rp.ExpiresAt.After(at)
}

// Active reports whether the edge grants at the given instant.
func (ur UserRole) Active(at time.Time) bool {
	return ur.ExpiresAt == nil || ur.ExpiresAt.After(at)
}
