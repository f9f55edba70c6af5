package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIRACGrid/diset/pkg/diset/errkind"
)

func TestParseURL(t *testing.T) {
	u, err := ParseURL("dips://cs.example.org:9135/Configuration/Server")
	require.NoError(t, err)
	assert.Equal(t, "dips", u.Scheme)
	assert.Equal(t, "cs.example.org", u.Host)
	assert.Equal(t, 9135, u.Port)
	assert.Equal(t, "Configuration/Server", u.Path)
	assert.Equal(t, "cs.example.org:9135", u.HostPort())
}

func TestParseURLRoundTrip(t *testing.T) {
	u, err := ParseURL("dips://cs.example.org:9135/Configuration/Server")
	require.NoError(t, err)
	assert.Equal(t, "dips://cs.example.org:9135/Configuration/Server", u.String())
}

func TestParseURLNoScheme(t *testing.T) {
	_, err := ParseURL("WorkloadManagement/JobMonitoring")
	assert.Equal(t, errkind.URLMalformed, errkind.GetKind(err))
}

func TestParseURLNoPort(t *testing.T) {
	_, err := ParseURL("dips://cs.example.org/Configuration/Server")
	assert.Equal(t, errkind.URLMalformed, errkind.GetKind(err))
}

func TestParseURLBadPort(t *testing.T) {
	_, err := ParseURL("dips://cs.example.org:notaport/Configuration/Server")
	assert.Equal(t, errkind.URLMalformed, errkind.GetKind(err))
}

func TestHasKnownScheme(t *testing.T) {
	scheme, ok := hasKnownScheme("dips://cs.example.org:9135/x", []string{"dip", "dips", "grpcs"})
	assert.True(t, ok)
	assert.Equal(t, "dips", scheme)

	_, ok = hasKnownScheme("WorkloadManagement/JobMonitoring", []string{"dip", "dips", "grpcs"})
	assert.False(t, ok)
}

func TestPathSuffixFromIndex3(t *testing.T) {
	assert.Equal(t, "a/b/c", pathSuffixFromIndex3("scheme://host:1234/a/b/c"))
	assert.Equal(t, "", pathSuffixFromIndex3("scheme://host:1234"))
}
