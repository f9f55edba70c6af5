package protocol_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIRACGrid/diset/pkg/diset/protocol"
)

func fakeFactory(context.Context, string, protocol.Options) (protocol.Transport, error) {
	return nil, nil
}

func TestRegisterAndLookup(t *testing.T) {
	protocol.Register("faketest", protocol.Plugin{Transport: fakeFactory})

	p, err := protocol.Lookup("faketest")
	require.NoError(t, err)
	assert.NotNil(t, p.Transport)
}

func TestLookupUnknownScheme(t *testing.T) {
	_, err := protocol.Lookup("does-not-exist")
	assert.Error(t, err)
}

func TestSchemesIncludesRegistered(t *testing.T) {
	protocol.Register("anothertest", protocol.Plugin{Transport: fakeFactory})
	assert.Contains(t, protocol.Schemes(), "anothertest")
}
