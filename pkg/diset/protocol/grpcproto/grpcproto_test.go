package grpcproto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIRACGrid/diset/pkg/diset/protocol"
)

func TestSchemeRegistered(t *testing.T) {
	assert.Contains(t, protocol.Schemes(), scheme)
}

func TestRawCodecRoundTrip(t *testing.T) {
	c := rawCodec{}
	in := []byte("opaque payload")
	encoded, err := c.Marshal(&in)
	require.NoError(t, err)

	var out []byte
	require.NoError(t, c.Unmarshal(encoded, &out))
	assert.Equal(t, in, out)
	assert.Equal(t, codecName, c.Name())
}

func TestRawCodecRejectsUnsupportedType(t *testing.T) {
	c := rawCodec{}
	_, err := c.Marshal("not a *[]byte")
	assert.Error(t, err)

	var dst string
	assert.Error(t, c.Unmarshal([]byte("x"), &dst))
}

func TestSanityCheckIsNetworkFree(t *testing.T) {
	identity, err := sanityCheck(context.Background(), "host:1234", protocol.Options{"certFile": "/some/path.pem"})
	require.NoError(t, err)
	assert.Equal(t, "/some/path.pem", identity["certFile"])
}

func TestTLSConfigFromOptionsSkipCACheck(t *testing.T) {
	conf, err := tlsConfigFromOptions(protocol.Options{"skipCACheck": "1"})
	require.NoError(t, err)
	assert.True(t, conf.InsecureSkipVerify)
}
