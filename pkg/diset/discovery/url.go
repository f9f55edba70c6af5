package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/DIRACGrid/diset/pkg/diset/errkind"
)

// URLTuple is a parsed "scheme://host:port/path" endpoint (spec.md §3).
type URLTuple struct {
	Scheme string
	Host   string
	Port   int
	Path   string
}

// String reassembles the tuple back into "scheme://host:port/path".
func (u URLTuple) String() string {
	return fmt.Sprintf("%s://%s:%d/%s", u.Scheme, u.Host, u.Port, strings.TrimPrefix(u.Path, "/"))
}

// HostPort returns "host:port", the form protocol.Factory expects.
func (u URLTuple) HostPort() string {
	return fmt.Sprintf("%s:%d", u.Host, u.Port)
}

// ParseURL splits rawURL into a URLTuple. It is intentionally stricter than
// net/url: DIRAC endpoint URLs always carry an explicit port, and the path
// is whatever comes after it verbatim (it is itself a "/"-separated service
// path, not URL-escaped).
func ParseURL(rawURL string) (URLTuple, error) {
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		return URLTuple{}, errkind.URLMalformed.Newf("%q has no scheme", rawURL)
	}
	hostPort, path, _ := strings.Cut(rest, "/")
	host, portStr, ok := strings.Cut(hostPort, ":")
	if !ok {
		return URLTuple{}, errkind.URLMalformed.Newf("%q has no port", rawURL)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return URLTuple{}, errkind.URLMalformed.Newf("%q has a non-numeric port: %v", rawURL, err)
	}
	return URLTuple{Scheme: scheme, Host: host, Port: port, Path: path}, nil
}

// hasKnownScheme reports whether rawURL starts with "<scheme>://" for one
// of the given schemes (spec.md §4.4 step 2). Grounded on the original
// Python's plain substring scan (destination.find(prot) == 0): a logical
// service name like "A/B" is not a URL and must fall through rather than
// erroring, so we deliberately do not parse with net/url first.
func hasKnownScheme(rawURL string, schemes []string) (string, bool) {
	for _, s := range schemes {
		if strings.HasPrefix(rawURL, s+"://") {
			return s, true
		}
	}
	return "", false
}

// pathSuffixFromIndex3 returns the path suffix after the third "/"-split
// component, matching spec.md §4.4 step 2's "path-suffix-from-index-3":
// given "scheme://host:port/a/b/c", splitting rawURL on "/" yields
// ["scheme:", "", "host:port", "a", "b", "c"]; index 3 onward is "a/b/c".
func pathSuffixFromIndex3(rawURL string) string {
	parts := strings.Split(rawURL, "/")
	if len(parts) <= 3 {
		return ""
	}
	return strings.Join(parts[3:], "/")
}
