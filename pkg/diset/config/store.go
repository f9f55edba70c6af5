// Package config is the read-only accessor over site/gateway/connection
// options (spec.md §4.2). All operations are pure reads; a missing key is
// reported as "absent", never as an error — a misconfigured or unreachable
// config service must never be fatal to the base client, only its absence
// of an answer matters.
package config

import "context"

// Store is the backing key/value lookup the base client reads through. It
// mirrors the teacher's Config interface (pkg/client/config.go) cut down to
// what a read-only RPC client needs: no write path, no merge semantics.
type Store interface {
	// GetSetup returns the deployment setup name, or "" if unset.
	GetSetup() string
	// GetValue returns the string at path, or def if the path is absent.
	GetValue(path, def string) string
	// GetOption returns the string at path and true, or ("", false) if
	// path is absent.
	GetOption(path string) (string, bool)
	// GetOptionsDict returns the key/value map at path (e.g. the
	// per-endpoint connection overrides) and true, or (nil, false) if path
	// is absent or not a map.
	GetOptionsDict(path string) (map[string]string, bool)
	// UseServerCertificateDefault reports the site-wide default for
	// whether clients should use host/server certificates absent an
	// explicit option.
	UseServerCertificateDefault() bool
	// SiteName returns the local site name, used to look up the site's
	// gateway list.
	SiteName() string
	// ResolveService is the service-URL lookup of spec.md §6: logical
	// name + setup -> comma-separated URL list, or absent. DIRAC stores
	// these under "/DIRAC/Services/<setup>/<serviceName>"; a Store that
	// backs onto a different layout is free to map it however it likes.
	ResolveService(serviceName, setup string) (string, bool)
}

type storeKey struct{}

// WithStore returns a context carrying store, retrievable with FromContext.
// Grounded on the teacher's WithConfig/GetConfig context pair
// (pkg/client/config.go), simplified: no atomic-swap since a base client
// never mutates its config view mid-session.
func WithStore(ctx context.Context, store Store) context.Context {
	return context.WithValue(ctx, storeKey{}, store)
}

// FromContext returns the Store carried by ctx, or nil if none was
// attached. The client's initialization pipeline does not read it: it takes
// its Store from diset.Dependencies and fails with InitFailed when that is
// nil.
func FromContext(ctx context.Context) Store {
	if s, ok := ctx.Value(storeKey{}).(Store); ok {
		return s
	}
	return nil
}
