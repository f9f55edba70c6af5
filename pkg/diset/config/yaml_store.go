package config

import (
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// YAMLStore is a Store backed by a YAML document whose shape mirrors
// DIRAC's configuration service: a tree of maps addressed by "/"-separated
// paths such as "/DIRAC/Setup" or "/DIRAC/ConnConf/cs.example.org:9135".
// Grounded on the teacher's config.go, which also loads a single YAML
// document (gopkg.in/yaml.v3) into a typed tree; we use an untyped tree
// here because the config service this client talks to is schemaless from
// the client's point of view.
type YAMLStore struct {
	mu      sync.RWMutex
	root    map[string]any
	site    string
	useCert bool
}

// LoadYAMLFile reads path and returns a YAMLStore over its contents. site
// and useCertDefault are not part of the document; they are the two facts
// about the local installation that DIRAC normally reads from a separate
// local config section, kept as constructor arguments to avoid inventing a
// schema for them.
func LoadYAMLFile(path, site string, useCertDefault bool) (*YAMLStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", path)
	}
	return &YAMLStore{root: root, site: site, useCert: useCertDefault}, nil
}

// NewYAMLStore wraps an already-parsed tree, used by tests.
func NewYAMLStore(root map[string]any, site string, useCertDefault bool) *YAMLStore {
	if root == nil {
		root = map[string]any{}
	}
	return &YAMLStore{root: root, site: site, useCert: useCertDefault}
}

func (s *YAMLStore) lookup(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parts := splitPath(path)
	var cur any = s.root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func (s *YAMLStore) GetSetup() string {
	return s.GetValue("/DIRAC/Setup", "")
}

func (s *YAMLStore) GetValue(path, def string) string {
	v, ok := s.lookup(path)
	if !ok {
		return def
	}
	if str, ok := v.(string); ok {
		return str
	}
	return def
}

func (s *YAMLStore) GetOption(path string) (string, bool) {
	v, ok := s.lookup(path)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s *YAMLStore) GetOptionsDict(path string) (map[string]string, bool) {
	v, ok := s.lookup(path)
	if !ok {
		return nil, false
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		switch t := val.(type) {
		case string:
			out[k] = t
		default:
			// Non-string leaves under a ConnConf section are not part of
			// the recognized option set; skip rather than fail the whole
			// lookup.
		}
	}
	return out, true
}

func (s *YAMLStore) UseServerCertificateDefault() bool {
	return s.useCert
}

func (s *YAMLStore) SiteName() string {
	return s.site
}

func (s *YAMLStore) ResolveService(serviceName, setup string) (string, bool) {
	return s.GetOption("/DIRAC/Services/" + setup + "/" + serviceName)
}
