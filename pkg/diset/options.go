package diset

import (
	"strings"

	"github.com/DIRACGrid/diset/pkg/diset/protocol"
)

const (
	minTimeoutSeconds   = 120
	defaultTimeout      = 600
	minKeepAliveSeconds = 150
)

// Options is the closed enumeration of recognized client options (spec.md
// §6), modelled as a struct with optional fields per the Design Note in
// spec.md §9, plus an Extra passthrough map for unknown keys forwarded
// verbatim to transport plugins.
type Options struct {
	UseCertificates  *bool
	ExtraCredentials *string
	Timeout          *int
	Setup            *string
	VO               *string
	DelegatedDN      *string
	DelegatedGroup   *string
	IgnoreGateways   bool
	ProxyLocation    *string
	ProxyString      *string
	ProxyChain       []byte
	SkipCACheck      *bool
	KeepAliveLapse   *int
	Extra            map[string]string
}

// clientConfig is the ClientConfig of spec.md §3: immutable after
// construction except for the Extra/kwargs bag, which URL discovery may
// augment with per-endpoint connection overrides, and delegatedDN/
// delegatedGroup, which Connect overwrites with its resolved values.
type clientConfig struct {
	destinationService string

	setup string
	vo    string

	timeout int

	useCertificates bool
	skipCACheck     bool

	proxyString string
	proxyChain  []byte

	delegatedDN    string
	delegatedGroup string

	ignoreGateways bool
	keepAliveLapse int

	explicitExtraCredentials *string

	connOptions protocol.Options // the Extra/kwargs bag
}

func clampTimeout(v *int) int {
	if v == nil || *v == 0 {
		return defaultTimeout
	}
	if *v < minTimeoutSeconds {
		return minTimeoutSeconds
	}
	return *v
}

func clampKeepAlive(v *int) int {
	if v == nil || *v == 0 {
		return 0
	}
	if *v < minKeepAliveSeconds {
		return minKeepAliveSeconds
	}
	return *v
}

// toConnOptions copies Extra into a fresh protocol.Options bag that
// discovery.Find is allowed to mutate (adding ConnConf overrides) without
// aliasing the caller's original map.
func (o Options) toConnOptions() protocol.Options {
	out := make(protocol.Options, len(o.Extra))
	for k, v := range o.Extra {
		out[k] = v
	}
	return out
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// resolvedProxyString returns the proxy material from Options before chain
// flattening: ProxyString takes precedence over ProxyLocation, matching
// spec.md §3's "proxyString / proxyChain: mutually substitutable credential
// material". Reading a proxy file off disk at ProxyLocation is a credential
// store concern (spec.md §1 Non-goals: "no credential store implementation");
// this package treats ProxyLocation as already-resolved proxy content rather
// than a path it opens itself.
func (o Options) resolvedProxyString() string {
	if o.ProxyString != nil {
		return *o.ProxyString
	}
	if o.ProxyLocation != nil {
		return strings.TrimSpace(*o.ProxyLocation)
	}
	return ""
}
