package discovery

// EndpointSet is the per-client discovery state of spec.md §3
// ("ServiceEndpointSet"): the candidate URLs for the service currently
// being dialed, the set of URLs that have failed this session, and the
// retry/sweep bookkeeping the connection manager drives.
type EndpointSet struct {
	Candidates   []string
	Banned       map[string]bool
	NbOfUrls     int
	NbOfRetry    int
	Retry        int
	RetryCounter int
}

// NewEndpointSet builds an EndpointSet for candidates, computing NbOfUrls
// and NbOfRetry per spec.md §3.
func NewEndpointSet(candidates []string) *EndpointSet {
	s := &EndpointSet{Candidates: candidates, Banned: make(map[string]bool)}
	s.recompute()
	return s
}

// SetCandidates replaces the candidate list (spec.md §4.4 step 4, re-run on
// every discovery pass) and recomputes NbOfUrls/NbOfRetry, preserving
// already-banned URLs that are still present.
func (s *EndpointSet) SetCandidates(candidates []string) {
	s.Candidates = candidates
	kept := make(map[string]bool, len(s.Banned))
	for _, c := range candidates {
		if s.Banned[c] {
			kept[c] = true
		}
	}
	s.Banned = kept
	s.recompute()
}

func (s *EndpointSet) recompute() {
	s.NbOfUrls = len(s.Candidates)
	if s.NbOfUrls > 2 {
		s.NbOfRetry = 2
	} else {
		s.NbOfRetry = 3
	}
}

// RetryBound is the maximum number of failed connect attempts allowed
// across one connect() call (spec.md §3, §4.6): nbOfRetry*nbOfUrls - 1.
func (s *EndpointSet) RetryBound() int {
	return s.NbOfRetry*s.NbOfUrls - 1
}

// AllBanned reports whether every candidate is currently banned.
func (s *EndpointSet) AllBanned() bool {
	return s.NbOfUrls > 0 && len(s.Banned) == s.NbOfUrls
}

// ResetBansIfFull clears Banned when every candidate is banned (spec.md §3
// invariant: "when |bannedUrls| == |candidates|, bannedUrls is cleared
// before the next selection").
func (s *EndpointSet) ResetBansIfFull() {
	if s.AllBanned() {
		s.Banned = make(map[string]bool)
	}
}

// Ban adds url to the banned set if it is not already there (spec.md §3
// invariant: "a URL is added to bannedUrls at most once per session").
// It returns true if url was newly banned.
func (s *EndpointSet) Ban(url string) bool {
	if s.Banned[url] {
		return false
	}
	s.Banned[url] = true
	return true
}
