package diset

import (
	"context"
	"encoding/gob"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dtime"
	"github.com/pkg/errors"

	"github.com/DIRACGrid/diset/pkg/diset/credential"
	"github.com/DIRACGrid/diset/pkg/diset/discovery"
	"github.com/DIRACGrid/diset/pkg/diset/errkind"
	"github.com/DIRACGrid/diset/pkg/diset/protocol"
	"github.com/DIRACGrid/diset/pkg/diset/result"
	"github.com/DIRACGrid/diset/pkg/diset/transport"
)

func init() {
	// ActionProposal and a few generic containers cross the wire boxed in
	// an interface value (protocol.Transport.SendData/ReceiveData take
	// `any`); the native disetproto scheme encodes them with encoding/gob,
	// which requires concrete dynamic types to be registered once, up
	// front, regardless of which package ends up doing the encoding.
	gob.Register(ActionProposal{})
	gob.Register(credential.ExtraCredentials{})
	gob.Register(envelope{})
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// envelope is the wire shape of spec.md's "OK-tagged value" convention
// (spec.md §6, §7 Design Note: "{OK, Value} | {OK=false, Message}"). It is
// the gob-friendly sibling of result.Result[T], with exported fields, while
// Result itself can't cross the wire (its fields are private, by design, so
// library callers can't forge a Result out of thin air). The action
// proposal is sent through toEnvelope and every received value goes
// through toResult, so the tag convention only exists in one place; the
// delegation payload is sent as raw bytes.
type envelope struct {
	OK      bool
	Value   any
	Message string
}

func toEnvelope(r result.Result[any]) envelope {
	if r.IsOK() {
		v, _ := r.Value()
		return envelope{OK: true, Value: v}
	}
	return envelope{OK: false, Message: r.Err().Error()}
}

func toResult(v any) result.Result[any] {
	env, ok := v.(envelope)
	if !ok {
		// A plugin or peer that doesn't speak the tagged convention still
		// gets to respond; treat an untagged value as a bare OK payload
		// rather than forcing every protocol.Transport to know about envelope.
		return result.OK(v)
	}
	if env.OK {
		return result.OK(env.Value)
	}
	return result.Err[any](errors.New(env.Message))
}

// delegateKey is the map key proposeAction's response is checked for
// (spec.md §6: "If that value is an OK-tagged map with key 'delegate'").
const delegateKey = "delegate"

const (
	initialSocketTimeoutSeconds = 1
	patientSocketTimeoutSeconds = 5
)

// Connect implements spec.md §4.6's connect() contract: it resolves
// credentials, discovers a candidate URL, instantiates and opens a
// transport, and on failure applies the ban/retry policy of spec.md §4.4
// and §4.6 before trying again, bounded by the endpoint set's retry
// budget.
func (c *Client) Connect(ctx context.Context) (transport.Handle, error) {
	c.guard.Check(ctx)
	if c.initErr != nil {
		return "", c.initErr
	}

	resolved, err := c.resolveCredentials(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cfg.delegatedDN = resolved.DelegatedDN
	c.cfg.delegatedGroup = resolved.DelegatedGroup
	connOptions := c.cfg.connOptions
	ignoreGateways := c.cfg.ignoreGateways
	setup := c.cfg.setup
	endpoints := c.endpoints
	c.mu.Unlock()

	socketTimeout := float64(initialSocketTimeoutSeconds)

	for {
		u, newSet, err := discovery.Find(ctx, c.deps.Store, c.destinationService, ignoreGateways, setup, endpoints, connOptions)
		if err != nil {
			return "", err
		}
		endpoints = newSet

		c.mu.Lock()
		c.endpoints = endpoints
		c.serviceURL = u
		c.socketTimeout = socketTimeout
		c.mu.Unlock()

		tr, openErr := c.openTransport(ctx, u, connOptions, socketTimeout)
		if openErr == nil {
			handle := c.pool.Add(tr)
			return handle, nil
		}

		dlog.Debugf(ctx, "diset: connect to %s failed: %v", u.String(), openErr)

		qualified := u.String()
		endpoints.Ban(qualified)

		if endpoints.RetryCounter == endpoints.NbOfRetry-1 {
			socketTimeout = patientSocketTimeoutSeconds
		}

		if endpoints.Retry >= endpoints.RetryBound() {
			return "", errkind.ConnectFailed.New(errors.Wrapf(openErr, "exhausted retry budget dialing %s", qualified))
		}
		endpoints.Retry++

		if endpoints.AllBanned() {
			endpoints.RetryCounter++
			delay := sweepDelay(endpoints.NbOfUrls)
			dlog.Debugf(ctx, "diset: sweep %d complete, sleeping %s before retrying", endpoints.RetryCounter, delay)
			dtime.SleepWithContext(ctx, delay)
			endpoints.ResetBansIfFull()
		}
	}
}

// sweepDelay implements spec.md §4.6: "retryDelay = 3/nbOfUrls if
// multi-URL else 2". Per the Open Question in spec.md §9 this is
// implemented literally, float division included, even though it yields a
// sub-second delay for many URLs.
func sweepDelay(nbOfUrls int) time.Duration {
	if nbOfUrls > 1 {
		return time.Duration(3.0 / float64(nbOfUrls) * float64(time.Second))
	}
	return 2 * time.Second
}

func (c *Client) openTransport(ctx context.Context, u discovery.URLTuple, opts protocol.Options, socketTimeoutSeconds float64) (protocol.Transport, error) {
	plugin, err := protocol.Lookup(u.Scheme)
	if err != nil {
		return nil, err
	}
	tr, err := plugin.Transport(ctx, u.HostPort(), opts)
	if err != nil {
		return nil, err
	}
	tr.SetSocketTimeout(socketTimeoutSeconds)
	if err := tr.InitAsClient(ctx); err != nil {
		_ = tr.Close()
		return nil, err
	}
	return tr, nil
}

// resolveCredentials runs credential.Resolve on every Connect call
// (spec.md §4.6), passing the client's stored delegated DN/group as the
// explicit ones. The thread-local identity (credential.WithIdentity) is
// therefore consulted only while no DN or group is stored; once init or an
// earlier Connect has stored one, a different identity on a later ctx is
// not picked up. c.cfg.proxyChain is cleared once init's one-time flattening
// runs, so this never re-flattens a chain (spec.md §4.3 step 5: "exactly once").
func (c *Client) resolveCredentials(ctx context.Context) (credential.Resolved, error) {
	c.mu.Lock()
	req := credential.Request{
		UseCertificates: c.cfg.useCertificates,
		ExplicitExtra:   c.cfg.explicitExtraCredentials,
		ExplicitDN:      c.cfg.delegatedDN,
		ExplicitGroup:   c.cfg.delegatedGroup,
		ProxyString:     c.cfg.proxyString,
		ProxyChain:      c.cfg.proxyChain,
	}
	c.mu.Unlock()
	return credential.Resolve(ctx, req, c.deps.Groups, c.deps.Flattener)
}

// Disconnect releases the transport registered under h (spec.md §4.6).
func (c *Client) Disconnect(ctx context.Context, h transport.Handle) error {
	c.guard.Check(ctx)
	if c.initErr != nil {
		return c.initErr
	}
	return c.pool.Close(ctx, h)
}

// ActionProposal is the payload sent after a transport is opened (spec.md
// §6): "(path, setup, vo), action, extraCredentials".
type ActionProposal struct {
	Path             string
	Setup            string
	VO               string
	Action           string
	ExtraCredentials credential.ExtraCredentials
}

// ProposeAction implements spec.md §4.6's proposeAction. The returned
// result.Result carries the server's OK/error-tagged response verbatim; the
// separate error return is reserved for transport-level failure (a
// send/receive that never produced a tagged value at all). One delegation
// round-trip happens first, transparently, if the server's response asks
// for one.
func (c *Client) ProposeAction(ctx context.Context, h transport.Handle, action string) (result.Result[any], error) {
	c.guard.Check(ctx)
	if c.initErr != nil {
		return result.Result[any]{}, c.initErr
	}

	tr, ok := c.pool.Get(h)
	if !ok {
		return result.Result[any]{}, errkind.SendFailed.Newf("unknown transport handle %q", h)
	}

	c.mu.Lock()
	proposal := ActionProposal{
		Path:             c.serviceURL.Path,
		Setup:            c.cfg.setup,
		VO:               c.cfg.vo,
		Action:           action,
		ExtraCredentials: c.extraCredentialsLocked(),
	}
	opts := c.cfg.connOptions
	c.mu.Unlock()

	if err := tr.SendData(ctx, toEnvelope(result.OK[any](proposal))); err != nil {
		return result.Result[any]{}, errkind.SendFailed.New(errors.Wrap(err, "sending action proposal"))
	}

	raw, err := tr.ReceiveData(ctx)
	if err != nil {
		return result.Result[any]{}, errkind.ReceiveFailed.New(errors.Wrap(err, "receiving action proposal response"))
	}
	resp := toResult(raw)

	if req, ok := delegationRequest(resp); ok {
		return c.delegateCredentials(ctx, tr, req, opts)
	}
	return resp, nil
}

// extraCredentialsLocked must be called with c.mu held.
func (c *Client) extraCredentialsLocked() credential.ExtraCredentials {
	if c.cfg.delegatedDN != "" && c.cfg.delegatedGroup != "" {
		return credential.ExtraCredentials{DN: c.cfg.delegatedDN, Group: c.cfg.delegatedGroup, Pair: true}
	}
	if c.cfg.explicitExtraCredentials != nil {
		return credential.ExtraCredentials{Sentinel: *c.cfg.explicitExtraCredentials}
	}
	if c.cfg.useCertificates {
		return credential.ExtraCredentials{Sentinel: credential.HostsSentinel}
	}
	return credential.ExtraCredentials{}
}

// delegationRequest reports whether resp is an OK result carrying a map
// with a "delegate" key, and returns that key's value (spec.md §4.6/§6).
func delegationRequest(resp result.Result[any]) (any, bool) {
	v, ok := resp.Value()
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	req, ok := m[delegateKey]
	return req, ok
}

// delegateCredentials implements spec.md §4.6's delegation round-trip: ask
// the scheme's delegation helper to produce the payload, send it, and
// return the server's next message as the effective result.
func (c *Client) delegateCredentials(ctx context.Context, tr protocol.Transport, request any, opts protocol.Options) (result.Result[any], error) {
	c.mu.Lock()
	scheme := c.serviceURL.Scheme
	c.mu.Unlock()

	plugin, err := protocol.Lookup(scheme)
	if err != nil {
		return result.Result[any]{}, errkind.DelegationFailed.New(err)
	}
	if plugin.DoDelegate == nil {
		return result.Result[any]{}, errkind.DelegationFailed.Newf("scheme %q does not support delegation", scheme)
	}

	payload, err := plugin.DoDelegate(ctx, request, opts)
	if err != nil {
		return result.Result[any]{}, errkind.DelegationFailed.New(errors.Wrap(err, "building delegation payload"))
	}
	if err := tr.SendData(ctx, payload); err != nil {
		return result.Result[any]{}, errkind.SendFailed.New(errors.Wrap(err, "sending delegation payload"))
	}
	raw, err := tr.ReceiveData(ctx)
	if err != nil {
		return result.Result[any]{}, errkind.ReceiveFailed.New(errors.Wrap(err, "receiving delegation response"))
	}
	return toResult(raw), nil
}
