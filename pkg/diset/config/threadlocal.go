package config

import "context"

// setupKey carries the thread/task-local setup override spec.md §3
// describes in the ClientConfig precedence chain: "explicit arg >
// thread-local override > config /DIRAC/Setup > 'Test'". Grounded on the
// same context-carried-state idea as the teacher's per-goroutine state
// (dgroup.WithGoroutineName) and this module's own credential.WithIdentity.
type setupKey struct{}

// WithSetupOverride tags ctx with a task-local setup name.
func WithSetupOverride(ctx context.Context, setup string) context.Context {
	return context.WithValue(ctx, setupKey{}, setup)
}

// SetupOverrideFromContext returns the task-local setup name tagged onto
// ctx, and whether one was present.
func SetupOverrideFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(setupKey{}).(string)
	return s, ok
}
