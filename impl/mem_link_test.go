package impl

import (
	"testing"
	"time"

	"github.com/encodeous/lattice/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(link interface{ OnReceive(func([]byte)) }) <-chan []byte {
	ch := make(chan []byte, 64)
	link.OnReceive(func(b []byte) { ch <- b })
	return ch
}

func recvFrame(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return nil
}

func TestMemPipeOrderedDelivery(t *testing.T) {
	a, b := NewMemPipe()
	defer a.Close()
	assert.Equal(t, state.TransportMemory, a.Transport())
	assert.NotEqual(t, a.Id(), b.Id())

	// frames sent before a handler is registered are held
	for i := range 10 {
		require.NoError(t, a.Send([]byte{byte(i)}))
	}
	ch := collect(b)
	for i := range 10 {
		assert.Equal(t, []byte{byte(i)}, recvFrame(t, ch))
	}
}

func TestMemPipeSendCopies(t *testing.T) {
	a, b := NewMemPipe()
	defer a.Close()
	ch := collect(b)

	buf := []byte("abc")
	require.NoError(t, a.Send(buf))
	buf[0] = 'x'
	assert.Equal(t, []byte("abc"), recvFrame(t, ch))
}

func TestMemPipeClose(t *testing.T) {
	a, b := NewMemPipeOver(state.TransportBluetooth)
	assert.Equal(t, state.TransportBluetooth, b.Transport())

	var aDown, bDown int
	a.OnDisconnect(func() { aDown++ })
	b.OnDisconnect(func() { bDown++ })

	require.NoError(t, b.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, aDown)
	assert.Equal(t, 1, bDown)

	assert.ErrorIs(t, a.Send([]byte("x")), ErrLinkClosed)

	late := false
	a.OnDisconnect(func() { late = true })
	assert.True(t, late, "handlers registered after close fire immediately")
}
