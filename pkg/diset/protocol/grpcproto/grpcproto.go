// Package grpcproto registers the "grpcs" scheme: a gRPC-backed Transport
// exercising google.golang.org/grpc end to end, grounded directly on the
// teacher's pkg/a8rcloud/systema.go (grpc.DialContext +
// credentials.NewTLS). Unlike a generated gRPC client, this one never runs
// protoc: it uses the generic byte-passthrough codec technique (also used
// by gRPC reverse proxies) so a single Invoke call can carry whatever
// opaque value the base client's wire protocol wants to send, with the
// actual field layout still owned by the caller (spec.md: "bytes owned by
// protocol plugin").
package grpcproto

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/gob"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/DIRACGrid/diset/pkg/diset/protocol"
)

const scheme = "grpcs"

// genericMethod is the single RPC method every exchange is sent to. There
// is no per-action method dispatch at the gRPC layer: the base client's
// action name travels inside the opaque payload, the same way DIRAC's
// native schemes carry it as a plain value rather than as part of the
// transport addressing.
const genericMethod = "/diset.BaseClient/Call"

const codecName = "diset-raw"

func init() {
	encoding.RegisterCodec(rawCodec{})
	protocol.Register(scheme, protocol.Plugin{
		Transport:  dial,
		Sanity:     sanityCheck,
		DoDelegate: delegate,
	})
}

// rawCodec passes a []byte straight through, letting callers choose their
// own encoding (we use encoding/gob, matching disetproto) instead of
// requiring generated protobuf messages for every payload shape.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, errors.Errorf("diset-raw codec: unsupported type %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	b, ok := v.(*[]byte)
	if !ok {
		return errors.Errorf("diset-raw codec: unsupported type %T", v)
	}
	*b = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return codecName }

// grpcTransport adapts the two-phase SendData/ReceiveData shape of
// protocol.Transport onto gRPC's unary Invoke: SendData buffers the
// gob-encoded payload, ReceiveData performs the actual round trip. This
// lets one Transport serve both the initial action proposal and a later
// delegation exchange, each as its own Invoke call on the same
// *grpc.ClientConn.
type grpcTransport struct {
	hostPort string
	tlsConf  *tls.Config

	mu      sync.Mutex
	conn    *grpc.ClientConn
	timeout float64
	pending []byte
}

func dial(_ context.Context, hostPort string, opts protocol.Options) (protocol.Transport, error) {
	conf, err := tlsConfigFromOptions(opts)
	if err != nil {
		return nil, err
	}
	return &grpcTransport{hostPort: hostPort, tlsConf: conf, timeout: 1}, nil
}

func (t *grpcTransport) InitAsClient(ctx context.Context) error {
	var creds credentials.TransportCredentials
	if t.tlsConf != nil {
		creds = credentials.NewTLS(t.tlsConf)
	} else {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.DialContext(ctx, t.hostPort, grpc.WithTransportCredentials(creds), grpc.WithBlock())
	if err != nil {
		return errors.Wrapf(err, "dialing %s", t.hostPort)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

// SetSocketTimeout records the timeout; neither the dial nor Invoke applies
// it.
func (t *grpcTransport) SetSocketTimeout(seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = seconds
}

func (t *grpcTransport) SendData(_ context.Context, payload any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return errors.Wrap(err, "encoding payload")
	}
	t.mu.Lock()
	t.pending = buf.Bytes()
	t.mu.Unlock()
	return nil
}

func (t *grpcTransport) ReceiveData(ctx context.Context) (any, error) {
	t.mu.Lock()
	conn := t.conn
	req := t.pending
	t.pending = nil
	t.mu.Unlock()

	if conn == nil {
		return nil, errors.New("transport not connected")
	}
	var resp []byte
	if err := conn.Invoke(ctx, genericMethod, &req, &resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, errors.Wrap(err, "invoking generic gRPC method")
	}
	var v any
	if err := gob.NewDecoder(bytes.NewReader(resp)).Decode(&v); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	return v, nil
}

func (t *grpcTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func tlsConfigFromOptions(opts protocol.Options) (*tls.Config, error) {
	conf := &tls.Config{}
	if v, ok := opts["skipCACheck"]; ok && (v == "True" || v == "true" || v == "1") {
		conf.InsecureSkipVerify = true
	}
	certFile, hasCert := opts["certFile"]
	keyFile, hasKey := opts["keyFile"]
	if hasCert && hasKey {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, errors.Wrap(err, "loading client certificate")
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	return conf, nil
}

// sanityCheck stays free of network I/O, matching spec.md's framing of the
// sanity check as a local precheck: it records the configured certFile in
// the identity dict without checking that the file exists or is readable
// (unlike disetproto's sanityCheck for "dips").
func sanityCheck(_ context.Context, _ string, opts protocol.Options) (protocol.IdentityDict, error) {
	identity := protocol.IdentityDict{}
	if certFile, ok := opts["certFile"]; ok {
		identity["certFile"] = certFile
	}
	return identity, nil
}

// delegate gob-encodes request as the delegation payload; the actual
// certificate-delegation cryptography belongs to the out-of-scope
// credential store (spec.md §1 Non-goals).
func delegate(_ context.Context, request any, _ protocol.Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&request); err != nil {
		return nil, errors.Wrap(err, "encoding delegation request")
	}
	return buf.Bytes(), nil
}
