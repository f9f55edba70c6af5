// Package credential implements the extra-credentials and delegated
// identity resolution described in spec.md §4.3. It produces the value
// sent as "extraCredentials" with every action proposal, and the
// (delegatedDN, delegatedGroup) pair BaseStub and the proposal both need.
package credential

import (
	"context"

	"github.com/pkg/errors"

	"github.com/DIRACGrid/diset/pkg/diset/errkind"
)

// HostsSentinel is the extraCredentials value sent when the client is
// acting as a host/service identity rather than a user one (spec.md §4.3
// step 1, §3 "extraCredentials").
const HostsSentinel = "hosts"

// ExtraCredentials is the sum type spec.md §3 describes: either the
// HostsSentinel, the empty string, or a (DN, group) pair. Exactly one shape
// is populated at a time; Pair is true iff DN/Group carry the pair form.
type ExtraCredentials struct {
	Sentinel string
	DN       string
	Group    string
	Pair     bool
}

// GroupResolver asks the security layer for the default group of a DN. It
// is an external collaborator (spec.md §1): this package only consumes it.
type GroupResolver interface {
	DefaultGroupForDN(ctx context.Context, dn string) (string, error)
}

// ChainFlattener turns a proxy chain (an ordered list of PEM blocks, or
// whatever the transport plugin's proxy representation is) into the single
// string form a transport plugin expects. Another external collaborator.
type ChainFlattener interface {
	Flatten(chain []byte) (string, error)
}

// Request is the input to Resolve: everything about proxy/certificate
// material and explicit identity overrides that the client constructor or
// caller supplied.
type Request struct {
	UseCertificates  bool
	ExplicitExtra    *string // explicit extraCredentials option, if any
	ExplicitDN       string
	ExplicitGroup    string
	ProxyString      string
	ProxyChain       []byte // non-nil if a chain was supplied instead of a flat string
}

// Resolved is the output of Resolve.
type Resolved struct {
	ExtraCredentials ExtraCredentials
	DelegatedDN      string
	DelegatedGroup   string
	ProxyString      string // ProxyString with any ProxyChain flattened into it
}

// Resolve implements spec.md §4.3 steps 1-5.
func Resolve(ctx context.Context, req Request, groups GroupResolver, flattener ChainFlattener) (Resolved, error) {
	out := Resolved{ProxyString: req.ProxyString}

	// Step 5: a proxy chain is flattened into proxyString exactly once.
	if len(req.ProxyChain) > 0 {
		flat, err := flattener.Flatten(req.ProxyChain)
		if err != nil {
			return Resolved{}, errkind.InvalidProxy.New(errors.Wrap(err, "flattening proxy chain"))
		}
		out.ProxyString = flat
	}

	// Step 1: base sentinel.
	if req.UseCertificates {
		out.ExtraCredentials = ExtraCredentials{Sentinel: HostsSentinel}
	} else {
		out.ExtraCredentials = ExtraCredentials{}
	}

	// Step 3: explicit args, else thread-local identity, else unset.
	dn, group := req.ExplicitDN, req.ExplicitGroup
	if dn == "" && group == "" {
		if id, ok := IdentityFromContext(ctx); ok {
			dn, group = id.DN, id.Group
		}
	}
	if dn != "" && group == "" {
		g, err := groups.DefaultGroupForDN(ctx, dn)
		if err != nil {
			return Resolved{}, errors.Wrapf(err, "resolving default group for DN %q", dn)
		}
		group = g
	}
	out.DelegatedDN, out.DelegatedGroup = dn, group

	// Step 2: explicit extraCredentials overrides the sentinel computed in
	// step 1 (and, per step 4, is itself overridden if both DN and group
	// are known).
	if req.ExplicitExtra != nil {
		out.ExtraCredentials = ExtraCredentials{Sentinel: *req.ExplicitExtra}
	}

	// Step 4: both known -> overrides everything above.
	if dn != "" && group != "" {
		out.ExtraCredentials = ExtraCredentials{DN: dn, Group: group, Pair: true}
	}

	return out, nil
}
