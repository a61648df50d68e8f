//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/encodeous/lattice/core"
	"github.com/encodeous/lattice/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	state.AskNodesDelay = 100 * time.Millisecond
	core.DialRetryDelay = 100 * time.Millisecond
	goleak.VerifyTestMain(m)
}

func TestStartStop(t *testing.T) {
	h := NewHarness(t)
	h.NewNode("node1")
	h.NewNode("node2")
	h.NewNode("node3")
	h.Graph = []string{"node1, node2, node3"}
	errs := h.Start()
	select {
	case <-time.After(time.Second):
	case err := <-errs:
		t.Error(err)
	}
	h.Stop()
}

func TestChainTextOverTCP(t *testing.T) {
	h := NewHarness(t)
	defer h.Stop()
	h.NewNode("a")
	h.NewNode("b")
	h.NewNode("c")
	h.Graph = []string{"a, b, c"}
	h.Start()

	require.Eventually(t, func() bool {
		return h.Connected("a", "b", "c")
	}, 10*time.Second, 50*time.Millisecond)

	a, c := h.Nodes["a"], h.Nodes["c"]
	hops := a.Lattice.Router.Routes(c.Cfg.Id)
	require.NotEmpty(t, hops)
	assert.Equal(t, uint32(1), hops[0].Hops)
	assert.Equal(t, state.TransportTCP, hops[0].Via.Transport())

	dest := c.Cfg.Identity().Node()
	_, err := a.Text.SendText(context.Background(), dest, 1, "over tcp", nil)
	require.NoError(t, err)

	chat := c.Text.Store().Chat(1)
	require.Len(t, chat, 1)
	assert.Equal(t, "over tcp", chat[0].Text.Text)
	assert.Equal(t, a.Cfg.Id, chat[0].Peer)
}

func TestRouteAroundStoppedNode(t *testing.T) {
	h := NewHarness(t)
	defer h.Stop()
	for _, name := range []string{"a", "b", "c", "d"} {
		h.NewNode(name)
	}
	// a square: a-b-d and a-c-d
	h.Graph = []string{"a, b, d", "a, c, d"}
	h.Start()

	require.Eventually(t, func() bool {
		return h.Connected("a", "b", "c", "d")
	}, 10*time.Second, 50*time.Millisecond)

	h.StopNode(h.Nodes["b"])
	require.Eventually(t, func() bool {
		return h.Connected("a", "c", "d") &&
			len(h.Nodes["a"].Lattice.Router.Routes(h.Nodes["b"].Cfg.Id)) == 0
	}, 10*time.Second, 50*time.Millisecond)

	a, d := h.Nodes["a"], h.Nodes["d"]
	_, err := a.Text.SendText(context.Background(), d.Cfg.Identity().Node(), 2, "detour", nil)
	require.NoError(t, err)
	assert.Len(t, d.Text.Store().Chat(2), 1)
}
