package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIRACGrid/diset/pkg/diset/errkind"
	"github.com/DIRACGrid/diset/pkg/diset/protocol"
)

type fakeStore struct {
	setup      string
	site       string
	gateway    string
	services   map[string]string // "setup/name" -> comma-separated URLs
	connConf   map[string]map[string]string
	useCertDef bool
}

func (s *fakeStore) GetSetup() string { return s.setup }
func (s *fakeStore) GetValue(path, def string) string {
	if v, ok := s.GetOption(path); ok {
		return v
	}
	return def
}
func (s *fakeStore) GetOption(path string) (string, bool) {
	if path == "/DIRAC/Gateways/"+s.site {
		if s.gateway == "" {
			return "", false
		}
		return s.gateway, true
	}
	return "", false
}
func (s *fakeStore) GetOptionsDict(path string) (map[string]string, bool) {
	v, ok := s.connConf[path]
	return v, ok
}
func (s *fakeStore) UseServerCertificateDefault() bool { return s.useCertDef }
func (s *fakeStore) SiteName() string                  { return s.site }
func (s *fakeStore) ResolveService(serviceName, setup string) (string, bool) {
	v, ok := s.services[setup+"/"+serviceName]
	return v, ok
}

func init() {
	protocol.Register("dips", protocol.Plugin{})
}

func TestFindServiceLookupSingleURL(t *testing.T) {
	store := &fakeStore{
		setup: "Production",
		site:  "SiteA",
		services: map[string]string{
			"Production/WorkloadManagement/JobMonitoring": "dips://wms.example.org:9130/WorkloadManagement/JobMonitoring",
		},
	}
	u, set, err := Find(context.Background(), store, "WorkloadManagement/JobMonitoring", true, "Production", nil, protocol.Options{})
	require.NoError(t, err)
	assert.Equal(t, "wms.example.org", u.Host)
	assert.Equal(t, 9130, u.Port)
	require.NotNil(t, set)
	assert.Equal(t, 1, set.NbOfUrls)
}

func TestFindServiceNotFound(t *testing.T) {
	store := &fakeStore{setup: "Production", site: "SiteA", services: map[string]string{}}
	_, _, err := Find(context.Background(), store, "Missing/Service", true, "Production", nil, protocol.Options{})
	assert.Equal(t, errkind.URLNotFound, errkind.GetKind(err))
}

func TestFindAlreadyQualifiedURLBypassesLookup(t *testing.T) {
	store := &fakeStore{setup: "Production", site: "SiteA"}
	u, set, err := Find(context.Background(), store, "dips://wms.example.org:9130/WorkloadManagement/JobMonitoring", true, "Production", nil, protocol.Options{})
	require.NoError(t, err)
	assert.Equal(t, "wms.example.org", u.Host)
	assert.Equal(t, 1, set.NbOfUrls)
}

func TestFindAppliesGatewayToLogicalName(t *testing.T) {
	store := &fakeStore{
		setup:   "Production",
		site:    "SiteA",
		gateway: "dips://gw.example.org:9135/Framework/Gateway",
	}
	u, _, err := Find(context.Background(), store, "WorkloadManagement/JobMonitoring", false, "Production", nil, protocol.Options{})
	require.NoError(t, err)
	assert.Equal(t, "gw.example.org", u.Host)
	assert.Equal(t, "WorkloadManagement/JobMonitoring", u.Path)
}

func TestFindAppliesGatewayToQualifiedURL(t *testing.T) {
	store := &fakeStore{
		setup:   "Production",
		site:    "SiteA",
		gateway: "dips://gw.example.org:9135/Framework/Gateway",
	}
	u, _, err := Find(context.Background(), store, "dips://wms.example.org:9130/WorkloadManagement/JobMonitoring", false, "Production", nil, protocol.Options{})
	require.NoError(t, err)
	assert.Equal(t, "gw.example.org", u.Host)
	assert.Equal(t, "WorkloadManagement/JobMonitoring", u.Path)
}

func TestFindAppliesConnConfOverridesWithoutClobbering(t *testing.T) {
	store := &fakeStore{
		setup: "Production",
		site:  "SiteA",
		services: map[string]string{
			"Production/WorkloadManagement/JobMonitoring": "dips://wms.example.org:9130/WorkloadManagement/JobMonitoring",
		},
		connConf: map[string]map[string]string{
			"/DIRAC/ConnConf/wms.example.org:9130": {"timeout": "30", "skipCACheck": "true"},
		},
	}
	overrides := protocol.Options{"skipCACheck": "false"} // caller-supplied value must win
	_, _, err := Find(context.Background(), store, "WorkloadManagement/JobMonitoring", true, "Production", nil, overrides)
	require.NoError(t, err)
	assert.Equal(t, "30", overrides["timeout"])
	assert.Equal(t, "false", overrides["skipCACheck"])
}

// TestSelectURLAvoidsBannedHost exercises spec.md §8 scenario 6: with more
// than two candidates, a banned URL on a host also reachable through a
// second, unbanned URL must never be worked around by just re-picking that
// same host — selectURL must prefer a candidate on a different host
// entirely. Run across many trials since the initial pick is randomized.
func TestSelectURLAvoidsBannedHost(t *testing.T) {
	const bannedURL = "dips://hosta.example.org:9130/x"
	const sameHostURL = "dips://hosta.example.org:9131/x" // same host, different port
	set := NewEndpointSet([]string{
		bannedURL,
		sameHostURL,
		"dips://hostb.example.org:9130/x",
		"dips://hostc.example.org:9130/x",
	})
	require.Equal(t, 4, set.NbOfUrls)
	set.Ban(bannedURL)

	for i := 0; i < 200; i++ {
		got := selectURL(set)
		assert.NotEqual(t, bannedURL, got, "banned URL must never be reselected")
		assert.NotEqual(t, sameHostURL, got, "a URL sharing a host with a banned URL must be avoided in favor of a different host")
	}
}

func TestFindReusesEndpointSetAcrossCalls(t *testing.T) {
	store := &fakeStore{
		setup: "Production",
		site:  "SiteA",
		services: map[string]string{
			"Production/WorkloadManagement/JobMonitoring": "dips://wms1.example.org:9130/x,dips://wms2.example.org:9130/x,dips://wms3.example.org:9130/x",
		},
	}
	_, set, err := Find(context.Background(), store, "WorkloadManagement/JobMonitoring", true, "Production", nil, protocol.Options{})
	require.NoError(t, err)
	set.Ban("dips://wms1.example.org:9130/x")

	_, set2, err := Find(context.Background(), store, "WorkloadManagement/JobMonitoring", true, "Production", set, protocol.Options{})
	require.NoError(t, err)
	assert.True(t, set2.Banned["dips://wms1.example.org:9130/x"])
}
