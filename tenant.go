package hogarfix

import "context"

// Every persisted record is scoped to a company. The runtime itself is
// deliberately NOT tenant-scoped: a module loaded once applies across all
// companies using that slug, with only the data queries carrying a company
// filter. Loading and unloading modules is therefore a global runtime
// operation, while Identity carries the resolved company/user pair through
// request handling into the data layer.

// CompanyID identifies a tenant. All adapter queries filter on it; an empty
// CompanyID means unscoped (used by the global module re-sync, never by
// request handlers).
type CompanyID string

// Identity is the resolved authentication context for a request. The
// runtime performs no authentication itself; callers supply an already
// resolved pair.
type Identity struct {
	CompanyID CompanyID
	UserID    string
}

type identityContextKey struct{}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity stored by WithIdentity.
// The second return is false when the context carries no identity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
