//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/encodeous/lattice/core"
	"github.com/encodeous/lattice/service"
	"github.com/encodeous/lattice/state"
	"github.com/stretchr/testify/require"
)

// TCPHarness runs a set of full nodes on loopback TCP.
type TCPHarness struct {
	t     *testing.T
	Nodes map[string]*Node
	// Graph lists comma separated chains, "a, b, c" links a-b and b-c.
	Graph  []string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errs   chan error
}

type Node struct {
	Name    string
	Cfg     state.LocalCfg
	Lattice *core.Lattice
	Text    *service.TextService
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHarness(t *testing.T) *TCPHarness {
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPHarness{
		t:      t,
		Nodes:  make(map[string]*Node),
		ctx:    ctx,
		cancel: cancel,
		errs:   make(chan error, 16),
	}
}

func freePort(t *testing.T) netip.AddrPort {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return netip.MustParseAddrPort(l.Addr().String())
}

func (h *TCPHarness) NewNode(name string) *Node {
	id, err := state.GenerateIdentity(name, 1024)
	require.NoError(h.t, err)
	cfg := state.NewLocalCfg(id)
	cfg.Listen = freePort(h.t)
	n := &Node{Name: name, Cfg: cfg}
	h.Nodes[name] = n
	return n
}

func (h *TCPHarness) links() [][2]string {
	var out [][2]string
	for _, chain := range h.Graph {
		parts := strings.Split(chain, ",")
		for i := 1; i < len(parts); i++ {
			out = append(out, [2]string{strings.TrimSpace(parts[i-1]), strings.TrimSpace(parts[i])})
		}
	}
	return out
}

// Start wires the graph into peer lists and starts every node.
func (h *TCPHarness) Start() <-chan error {
	for _, l := range h.links() {
		a, ok := h.Nodes[l[0]]
		require.True(h.t, ok, "unknown node %s", l[0])
		b, ok := h.Nodes[l[1]]
		require.True(h.t, ok, "unknown node %s", l[1])
		a.Cfg.Peers = append(a.Cfg.Peers, b.Cfg.Listen)
	}
	for _, n := range h.Nodes {
		h.StartNode(n)
	}
	return h.errs
}

func (h *TCPHarness) StartNode(n *Node) {
	ctx, cancel := context.WithCancel(h.ctx)
	lt, err := core.New(ctx, n.Cfg, nil)
	require.NoError(h.t, err)
	n.Lattice = lt
	n.Text = service.NewTextService(lt.Controller, service.NewMemoryMessageStore(), nil)
	n.cancel = cancel
	n.done = make(chan struct{})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(n.done)
		if err := lt.Run(n.Text); err != nil && ctx.Err() == nil {
			h.errs <- fmt.Errorf("%s: %w", n.Name, err)
		}
	}()
}

// StopNode stops one node and waits for it to shut down.
func (h *TCPHarness) StopNode(n *Node) {
	n.cancel()
	<-n.done
}

// Connected reports whether every running node routes to every other one.
func (h *TCPHarness) Connected(names ...string) bool {
	for _, a := range names {
		for _, b := range names {
			if a == b {
				continue
			}
			if len(h.Nodes[a].Lattice.Router.Routes(h.Nodes[b].Cfg.Id)) == 0 {
				return false
			}
		}
	}
	return true
}

func (h *TCPHarness) Stop() {
	h.cancel()
	h.wg.Wait()
}
