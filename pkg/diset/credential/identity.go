package credential

import "context"

// Identity is a resolved (DN, group) pair.
type Identity struct {
	DN    string
	Group string
}

// Empty reports whether both fields are unset.
func (i Identity) Empty() bool {
	return i.DN == "" && i.Group == ""
}

type identityKey struct{}

// WithIdentity tags ctx with the calling task's own identity, the way the
// teacher threads per-task state through context rather than a process
// global. The base client consults this when no explicit DN/group was
// passed to the client constructor (spec.md §4.3 step 3).
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the Identity tagged onto ctx, and whether one
// was present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
