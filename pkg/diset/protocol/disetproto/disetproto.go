// Package disetproto registers the "dip" and "dips" schemes, DIRAC's
// native wire family: gob-encoded values over a plain ("dip") or
// TLS-secured ("dips") TCP socket. Grounded on the teacher's raw socket
// dialing helpers (pkg/client/sockets.go, DialSocket) and the
// crypto/tls.Config pattern from pkg/a8rcloud/systema.go's grpc transport
// credentials, here applied directly to net.Conn instead of through gRPC,
// since DISET predates and is not gRPC.
package disetproto

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/gob"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/DIRACGrid/diset/pkg/diset/protocol"
)

const (
	schemeSecure = "dips"
	schemePlain  = "dip"

	optCertFile = "certFile"
	optKeyFile  = "keyFile"
	optCAFile   = "caFile"
)

func init() {
	protocol.Register(schemeSecure, protocol.Plugin{
		Transport:  dialSecure,
		Sanity:     sanityCheck(true),
		DoDelegate: delegate,
	})
	protocol.Register(schemePlain, protocol.Plugin{
		Transport:  dialPlain,
		Sanity:     sanityCheck(false),
		DoDelegate: delegate,
	})
}

// socketTransport is a Transport over a single net.Conn, writing every
// value as a gob encoding straight onto the connection, with no length
// prefix. gob is the one place this module falls back to the
// standard library rather than a pack-grounded codec (see DESIGN.md): DISET
// is not gRPC/protobuf, and hand-authoring a length-prefixed protobuf
// envelope without running protoc would be more likely to be subtly wrong
// than to be an improvement over gob, which is exactly the tool Go's own
// net/rpc uses for this same shape of problem.
type socketTransport struct {
	hostPort string
	tlsConf  *tls.Config // nil for plaintext "dip"

	conn    net.Conn
	timeout time.Duration
}

func dialSecure(_ context.Context, hostPort string, opts protocol.Options) (protocol.Transport, error) {
	conf, err := tlsConfigFromOptions(opts)
	if err != nil {
		return nil, err
	}
	return &socketTransport{hostPort: hostPort, tlsConf: conf, timeout: time.Second}, nil
}

func dialPlain(_ context.Context, hostPort string, _ protocol.Options) (protocol.Transport, error) {
	return &socketTransport{hostPort: hostPort, timeout: time.Second}, nil
}

func (t *socketTransport) InitAsClient(ctx context.Context) error {
	d := net.Dialer{Timeout: t.timeout}
	var conn net.Conn
	var err error
	if t.tlsConf != nil {
		conn, err = tls.DialWithDialer(&d, "tcp", t.hostPort, t.tlsConf)
	} else {
		conn, err = d.DialContext(ctx, "tcp", t.hostPort)
	}
	if err != nil {
		return errors.Wrapf(err, "dialing %s", t.hostPort)
	}
	t.conn = conn
	return nil
}

func (t *socketTransport) SetSocketTimeout(seconds float64) {
	t.timeout = time.Duration(seconds * float64(time.Second))
	if t.conn != nil {
		deadline := time.Now().Add(t.timeout)
		_ = t.conn.SetDeadline(deadline)
	}
}

func (t *socketTransport) SendData(_ context.Context, payload any) error {
	if t.conn == nil {
		return errors.New("transport not connected")
	}
	return writeFrame(t.conn, payload)
}

func (t *socketTransport) ReceiveData(_ context.Context) (any, error) {
	if t.conn == nil {
		return nil, errors.New("transport not connected")
	}
	return readFrame(t.conn)
}

func (t *socketTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func writeFrame(w net.Conn, v any) error {
	enc := gob.NewEncoder(&lengthPrefixedWriter{w: w})
	return enc.Encode(&v)
}

func readFrame(r net.Conn) (any, error) {
	var v any
	dec := gob.NewDecoder(r)
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// lengthPrefixedWriter passes writes through unchanged: no length prefix is
// added, and each value is delimited only by gob's own encoding. Kept as a
// named type so SendData's framing strategy has one place to change if a
// future scheme needs an explicit prefix (e.g. for multiplexing).
type lengthPrefixedWriter struct {
	w net.Conn
}

func (l *lengthPrefixedWriter) Write(p []byte) (int, error) {
	return l.w.Write(p)
}

func tlsConfigFromOptions(opts protocol.Options) (*tls.Config, error) {
	conf := &tls.Config{}
	if v, ok := opts["skipCACheck"]; ok && (v == "True" || v == "true" || v == "1") {
		conf.InsecureSkipVerify = true
	}
	certFile, hasCert := opts[optCertFile]
	keyFile, hasKey := opts[optKeyFile]
	if hasCert && hasKey {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, errors.Wrap(err, "loading client certificate")
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	if caFile, ok := opts[optCAFile]; ok {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading CA file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates found in %s", caFile)
		}
		conf.RootCAs = pool
	}
	return conf, nil
}

// sanityCheck returns the protocol-specific precheck of spec.md §4.1: for
// the secure scheme, that the configured certificate/key files (if any)
// exist (os.Stat) before the first connect is attempted; for the
// plaintext scheme, there is nothing to check.
func sanityCheck(secure bool) protocol.SanityCheck {
	return func(_ context.Context, _ string, opts protocol.Options) (protocol.IdentityDict, error) {
		if !secure {
			return protocol.IdentityDict{}, nil
		}
		identity := protocol.IdentityDict{}
		if certFile, ok := opts[optCertFile]; ok {
			if _, err := os.Stat(certFile); err != nil {
				return nil, errors.Wrapf(err, "certificate file %s", certFile)
			}
			identity["certFile"] = certFile
		}
		if keyFile, ok := opts[optKeyFile]; ok {
			if _, err := os.Stat(keyFile); err != nil {
				return nil, errors.Wrapf(err, "key file %s", keyFile)
			}
		}
		return identity, nil
	}
}

// delegate builds the delegation payload for the native scheme: a string
// request is returned as its bytes; a request of any other type yields an
// empty payload. Real certificate-delegation
// cryptography is a credential-store concern explicitly out of scope
// (spec.md §1 Non-goals: "no credential store implementation").
func delegate(_ context.Context, request any, _ protocol.Options) ([]byte, error) {
	return []byte(fieldsToString(request)), nil
}

func fieldsToString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
