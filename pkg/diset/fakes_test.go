package diset

import (
	"context"
	"sync"

	"github.com/DIRACGrid/diset/pkg/diset/config"
	"github.com/DIRACGrid/diset/pkg/diset/protocol"
)

// fakeStore is a minimal in-memory config.Store, in the spirit of the
// teacher's hand-written config fakes rather than a mock framework.
type fakeStore struct {
	setup      string
	vo         string
	site       string
	gateway    string
	useCertDef bool
	skipCA     bool
	services   map[string]string
	connConf   map[string]map[string]string
}

func (s *fakeStore) GetSetup() string { return s.setup }

func (s *fakeStore) GetValue(path, def string) string {
	switch path {
	case "/DIRAC/VirtualOrganization":
		if s.vo != "" {
			return s.vo
		}
	}
	return def
}

func (s *fakeStore) GetOption(path string) (string, bool) {
	switch path {
	case "/DIRAC/Gateways/" + s.site:
		if s.gateway == "" {
			return "", false
		}
		return s.gateway, true
	case "/DIRAC/Security/SkipCAChecks":
		if s.skipCA {
			return "true", true
		}
		return "", false
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

var _ config.Store = (*fakeStore)(nil)

// fakeGroups always resolves to a fixed group, matching the teacher's
// pattern of one trivial fake per collaborator interface instead of a mock.
type fakeGroups struct{ group string }

func (g fakeGroups) DefaultGroupForDN(context.Context, string) (string, error) {
	return g.group, nil
}

type fakeFlattener struct{ flat string }

func (f fakeFlattener) Flatten([]byte) (string, error) { return f.flat, nil }

// fakeTransport is a protocol.Transport double whose InitAsClient can be
// made to fail a fixed number of times before succeeding, exercising the
// connect/retry/ban loop without a real socket.
type fakeTransport struct {
	mu        sync.Mutex
	failTimes int
	attempts  int
	sent      []any
	responses []any
	closed    bool
}

func (t *fakeTransport) InitAsClient(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	if t.attempts <= t.failTimes {
		return errConnectRefused
	}
	return nil
}

func (t *fakeTransport) SetSocketTimeout(float64) {}

func (t *fakeTransport) SendData(_ context.Context, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, payload)
	return nil
}

func (t *fakeTransport) ReceiveData(context.Context) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.responses) == 0 {
		return envelope{OK: true, Value: map[string]any{}}, nil
	}
	resp := t.responses[0]
	t.responses = t.responses[1:]
	return resp, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

var _ protocol.Transport = (*fakeTransport)(nil)

var errConnectRefused = &connectRefusedError{}

type connectRefusedError struct{}

func (*connectRefusedError) Error() string { return "connection refused" }

// registerFakeScheme installs a protocol.Plugin backed by transports, one
// per dial, so each test can hand out a fresh, independently configurable
// fakeTransport per host.
func registerFakeScheme(scheme string, next func(hostPort string) *fakeTransport) {
	protocol.Register(scheme, protocol.Plugin{
		Transport: func(_ context.Context, hostPort string, _ protocol.Options) (protocol.Transport, error) {
			return next(hostPort), nil
		},
		Sanity: func(context.Context, string, protocol.Options) (protocol.IdentityDict, error) {
			return protocol.IdentityDict{}, nil
		},
		DoDelegate: func(_ context.Context, request any, _ protocol.Options) ([]byte, error) {
			return []byte("delegated"), nil
		},
	})
}
