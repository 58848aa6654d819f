package shared

import "context"

// Identity describes a verified actor as supplied by the authentication
// collaborator in front of this engine. Role is the declared primary role
// used for registration gating; authorization decisions always go through
// the role graph, never this field alone.
type Identity struct {
	UserID int64
	Role   string
}

type identityContextKey struct{}

// ContextWithIdentity stores the verified identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context. Returns nil for
// unauthenticated requests; those are still audit-logged with a null actor.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
