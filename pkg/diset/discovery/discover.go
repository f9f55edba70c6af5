// Package discovery implements the URL Discoverer (spec.md §4.4): turning
// a logical service name (or an already-qualified URL) into one concrete
// endpoint, applying gateway rewriting and the ban/retry-aware selection
// among multiple candidates, including the host-avoidance tie-break.
package discovery

import (
	"context"
	"math/rand"
	"strings"

	"github.com/DIRACGrid/diset/pkg/diset/config"
	"github.com/DIRACGrid/diset/pkg/diset/errkind"
	"github.com/DIRACGrid/diset/pkg/diset/protocol"
)

// Find implements spec.md §4.4's findServiceURL. destinationService is
// either a logical name ("System/Agent") or an already-qualified URL.
// overrides is the caller's per-call option map; on success it is mutated
// to add any "/DIRAC/ConnConf/<host>:<port>" keys not already present
// (step 9: "existing keys win").
//
// set is nil on the very first discovery (there is no candidate list yet);
// whenever set is nil and candidates were found, Find allocates one and
// returns it as the *EndpointSet result, whichever branch produced the
// candidates, so callers should keep using the returned set on subsequent
// calls within the same connect() retry loop.
func Find(
	ctx context.Context,
	store config.Store,
	destinationService string,
	ignoreGateways bool,
	setup string,
	set *EndpointSet,
	overrides protocol.Options,
) (URLTuple, *EndpointSet, error) {
	gateway := ""
	if !ignoreGateways {
		gateway = pickGateway(store)
	}

	_, alreadyQualified := hasKnownScheme(destinationService, protocol.Schemes())

	var candidates []string
	switch {
	case alreadyQualified:
		// Step 2: destinationService is already a qualified URL.
		if gateway == "" {
			candidates = []string{destinationService}
		} else {
			candidates = []string{gateway + "/" + pathSuffixFromIndex3(destinationService)}
		}
	case gateway != "":
		// Step 3: no scheme, but a gateway applies.
		candidates = []string{gateway + "/" + destinationService}
	default:
		// Step 4: resolve the logical name via the service-URL lookup.
		raw, ok := store.ResolveService(destinationService, setup)
		if !ok || raw == "" {
			return URLTuple{}, set, errkind.URLNotFound.Newf("no URL found for service %q in setup %q", destinationService, setup)
		}
		candidates = splitCandidates(raw)
		if len(candidates) == 0 {
			return URLTuple{}, set, errkind.URLNotFound.Newf("empty URL list for service %q in setup %q", destinationService, setup)
		}
	}

	// Steps 5-8 apply uniformly whether the candidate list came from a
	// gateway rewrite (always length 1) or the service-URL lookup (often
	// more than one): recompute the retry bookkeeping, reset a fully-banned
	// set, then pick with the host-avoidance tie-break.
	if set == nil {
		set = NewEndpointSet(candidates)
	} else {
		set.SetCandidates(candidates)
	}
	set.ResetBansIfFull()

	chosen := selectURL(set)
	u, err := ParseURL(chosen)
	if err != nil {
		return URLTuple{}, set, err
	}
	applyConnConf(store, u, overrides)
	return u, set, nil
}

func splitCandidates(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// pickGateway implements spec.md §4.4 step 1.
func pickGateway(store config.Store) string {
	raw, ok := store.GetOption("/DIRAC/Gateways/" + store.SiteName())
	if !ok || raw == "" {
		return ""
	}
	candidates := splitCandidates(raw)
	if len(candidates) == 0 {
		return ""
	}
	picked := candidates[rand.Intn(len(candidates))] //nolint:gosec // selection, not a secret
	u, err := ParseURL(picked)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.HostPort()
}

// selectURL implements spec.md §4.4 steps 6-8: working-list restriction,
// randomized pick, and the host-avoidance tie-break.
func selectURL(set *EndpointSet) string {
	working := set.Candidates
	if len(set.Candidates) > 1 {
		working = make([]string, 0, len(set.Candidates))
		for _, c := range set.Candidates {
			if !set.Banned[c] {
				working = append(working, c)
			}
		}
		if len(working) == 0 {
			// Every candidate banned and not yet reset (shouldn't happen
			// since ResetBansIfFull runs first, but fall back safely).
			working = set.Candidates
		}
	}

	shuffled := make([]string, len(working))
	copy(shuffled, working)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] }) //nolint:gosec

	sURL := shuffled[0]
	if len(set.Banned) > 0 && set.NbOfUrls > 2 {
		sHost := hostOf(sURL)
		if bannedHostMatches(set.Banned, sHost) {
			for _, candidate := range shuffled[1:] {
				if hostOf(candidate) != sHost {
					return candidate
				}
			}
		}
	}
	return sURL
}

func hostOf(rawURL string) string {
	u, err := ParseURL(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

func bannedHostMatches(banned map[string]bool, host string) bool {
	for b := range banned {
		if hostOf(b) == host {
			return true
		}
	}
	return false
}

// applyConnConf implements spec.md §4.4 step 9.
func applyConnConf(store config.Store, u URLTuple, overrides protocol.Options) {
	conf, ok := store.GetOptionsDict("/DIRAC/ConnConf/" + u.HostPort())
	if !ok {
		return
	}
	for k, v := range conf {
		if _, present := overrides[k]; !present {
			overrides[k] = v
		}
	}
}
