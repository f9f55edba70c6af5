// Package protocol is the extension point for wire schemes: a named table
// of transport factories plus the two protocol-owned side channels (sanity
// check and credential delegation) that the connection manager calls into.
// Grounded on the teacher's pattern of a ClientProvider[T] passed into a
// generic pool (github.com/telepresenceio/telepresence pkg/a8rcloud), here
// flattened into a plain scheme->Factory registry since the base client
// only ever needs one transport shape.
package protocol

import (
	"context"
	"fmt"
	"sync"
)

// Options carries the closed set of per-call options (spec.md §6) plus any
// passthrough keys a scheme-specific factory needs, already merged with the
// /DIRAC/ConnConf/<host>:<port> overrides for the endpoint being dialed.
type Options map[string]string

// IdentityDict is whatever identity facts a sanity check can assert about
// the local environment (e.g. the DN of the certificate on disk). It is
// opaque to the connection manager beyond being threaded into BaseStub.
type IdentityDict map[string]string

// Transport is the blocking, synchronous socket-like object a scheme
// produces. Every method may be called from only one goroutine at a time by
// contract (see pkg/diset/affinity), matching the single-owner-thread
// contract of the base client itself.
type Transport interface {
	// InitAsClient performs the handshake/dial. ctx governs cancellation.
	InitAsClient(ctx context.Context) error
	// SetSocketTimeout sets the socket timeout in seconds. Safe to call
	// before InitAsClient, which is where the connection manager calls it.
	// How the value is applied is up to the scheme: disetproto uses it as
	// the dial timeout (and, on an already open connection, as a deadline
	// counted from the call); grpcproto records it without applying it.
	SetSocketTimeout(seconds float64)
	// SendData writes one protocol value.
	SendData(ctx context.Context, payload any) error
	// ReceiveData reads one protocol value.
	ReceiveData(ctx context.Context) (any, error)
	// Close releases any underlying resource. Must tolerate being called
	// more than once.
	Close() error
}

// Factory builds a Transport for the given host/port using opts. hostPort
// is "host:port", never including a scheme or path.
type Factory func(ctx context.Context, hostPort string, opts Options) (Transport, error)

// SanityCheck is a protocol-specific precheck of the local environment
// (certs readable, sockets creatable) run once at client construction,
// before any network connection is attempted.
type SanityCheck func(ctx context.Context, hostPort string, opts Options) (IdentityDict, error)

// Delegate asks the scheme to produce the bytes of a delegation response to
// an in-flight delegation request, using the current options for identity
// material (proxy/certificate locations).
type Delegate func(ctx context.Context, request any, opts Options) ([]byte, error)

// Plugin bundles the three operations a scheme registers.
type Plugin struct {
	Transport  Factory
	Sanity     SanityCheck
	DoDelegate Delegate
}

type registry struct {
	mu      sync.RWMutex
	schemes map[string]Plugin
}

var global = &registry{schemes: make(map[string]Plugin)}

// Register adds scheme to the process-wide registry. It is write-once in
// practice (called from package init of each protocol implementation) but
// is safe to call at any time; a later call for the same scheme overwrites
// the earlier one, which is convenient for tests that install a fake.
func Register(scheme string, p Plugin) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.schemes[scheme] = p
}

// Lookup returns the Plugin registered for scheme, or an error naming it.
func Lookup(scheme string) (Plugin, error) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	p, ok := global.schemes[scheme]
	if !ok {
		return Plugin{}, fmt.Errorf("no transport registered for scheme %q", scheme)
	}
	return p, nil
}

// Schemes returns the currently registered scheme names, for use by the URL
// discoverer's "does destinationService already start with a known scheme"
// check (spec.md §4.4 step 2).
func Schemes() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	out := make([]string, 0, len(global.schemes))
	for s := range global.schemes {
		out = append(out, s)
	}
	return out
}
