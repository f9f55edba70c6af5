package transport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIRACGrid/diset/pkg/diset/protocol"
	"github.com/DIRACGrid/diset/pkg/diset/transport"
)

type fakeTransport struct{ closed int }

func (f *fakeTransport) InitAsClient(context.Context) error      { return nil }
func (f *fakeTransport) SetSocketTimeout(float64)                {}
func (f *fakeTransport) SendData(context.Context, any) error     { return nil }
func (f *fakeTransport) ReceiveData(context.Context) (any, error) { return nil, nil }
func (f *fakeTransport) Close() error                             { f.closed++; return nil }

var _ protocol.Transport = (*fakeTransport)(nil)

func TestPoolAddGetClose(t *testing.T) {
	p := transport.NewPool()
	tr := &fakeTransport{}
	h := p.Add(tr)
	assert.Equal(t, 1, p.Len())

	got, ok := p.Get(h)
	require.True(t, ok)
	assert.Same(t, tr, got)

	require.NoError(t, p.Close(context.Background(), h))
	assert.Equal(t, 1, tr.closed)
	assert.Equal(t, 0, p.Len())
}

func TestPoolCloseUnknownIsNoop(t *testing.T) {
	p := transport.NewPool()
	assert.NoError(t, p.Close(context.Background(), transport.Handle("does-not-exist")))
}

func TestPoolCloseTwiceIsNoop(t *testing.T) {
	p := transport.NewPool()
	tr := &fakeTransport{}
	h := p.Add(tr)
	require.NoError(t, p.Close(context.Background(), h))
	require.NoError(t, p.Close(context.Background(), h))
	assert.Equal(t, 1, tr.closed)
}

func TestDefaultPoolIsSingleton(t *testing.T) {
	assert.Same(t, transport.Default(), transport.Default())
}

func TestPoolHandlesAreUnique(t *testing.T) {
	p := transport.NewPool()
	h1 := p.Add(&fakeTransport{})
	h2 := p.Add(&fakeTransport{})
	assert.NotEqual(t, h1, h2)
}
