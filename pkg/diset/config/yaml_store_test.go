package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIRACGrid/diset/pkg/diset/config"
)

func sampleTree() map[string]any {
	return map[string]any{
		"DIRAC": map[string]any{
			"Setup": "Production",
			"Gateways": map[string]any{
				"SiteA": "dips://gw.example.org:9135",
			},
			"Services": map[string]any{
				"Production": map[string]any{
					"WorkloadManagement": map[string]any{
						"JobMonitoring": "dips://wms1.example.org:9130/WorkloadManagement/JobMonitoring,dips://wms2.example.org:9130/WorkloadManagement/JobMonitoring",
					},
				},
			},
			"ConnConf": map[string]any{
				"wms1.example.org:9130": map[string]any{
					"timeout": "30",
				},
			},
		},
	}
}

func TestYAMLStoreGetValue(t *testing.T) {
	s := config.NewYAMLStore(sampleTree(), "SiteA", false)
	assert.Equal(t, "Production", s.GetSetup())
	assert.Equal(t, "Production", s.GetValue("/DIRAC/Setup", "fallback"))
	assert.Equal(t, "fallback", s.GetValue("/DIRAC/Missing", "fallback"))
}

func TestYAMLStoreGetOption(t *testing.T) {
	s := config.NewYAMLStore(sampleTree(), "SiteA", false)
	v, ok := s.GetOption("/DIRAC/Gateways/SiteA")
	require.True(t, ok)
	assert.Equal(t, "dips://gw.example.org:9135", v)

	_, ok = s.GetOption("/DIRAC/Gateways/SiteB")
	assert.False(t, ok)
}

func TestYAMLStoreGetOptionsDict(t *testing.T) {
	s := config.NewYAMLStore(sampleTree(), "SiteA", false)
	dict, ok := s.GetOptionsDict("/DIRAC/ConnConf/wms1.example.org:9130")
	require.True(t, ok)
	assert.Equal(t, "30", dict["timeout"])

	_, ok = s.GetOptionsDict("/DIRAC/ConnConf/unknown:1")
	assert.False(t, ok)
}

func TestYAMLStoreResolveService(t *testing.T) {
	s := config.NewYAMLStore(sampleTree(), "SiteA", false)
	raw, ok := s.ResolveService("WorkloadManagement/JobMonitoring", "Production")
	require.True(t, ok)
	assert.Contains(t, raw, "wms1.example.org")
}

func TestYAMLStoreSiteAndCertDefault(t *testing.T) {
	s := config.NewYAMLStore(nil, "SiteA", true)
	assert.Equal(t, "SiteA", s.SiteName())
	assert.True(t, s.UseServerCertificateDefault())
}

func TestLoadYAMLFileMissing(t *testing.T) {
	_, err := config.LoadYAMLFile("/nonexistent/path.yaml", "SiteA", false)
	assert.Error(t, err)
}
