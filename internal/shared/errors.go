package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrSystemRole indicates an attempt to delete or rename a system role.
	ErrSystemRole = errors.New("system role is protected")
)

// UserSafeMessage returns a message safe to surface to API clients.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record does not exist."
	case errors.Is(err, ErrSystemRole):
		return "System roles cannot be deleted or renamed."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
