package core

import (
	"sync"
	"testing"
	"time"

	"github.com/encodeous/lattice/impl"
	"github.com/encodeous/lattice/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	identityMu    sync.Mutex
	identityCache = map[string]*state.Identity{}
)

// testIdentity returns a small-keyed identity, reused across tests by name.
func testIdentity(t *testing.T, name string) *state.Identity {
	t.Helper()
	identityMu.Lock()
	defer identityMu.Unlock()
	if id, ok := identityCache[name]; ok {
		return id
	}
	id, err := state.GenerateIdentity(name, 1024)
	require.NoError(t, err)
	identityCache[name] = id
	return id
}

type testNode struct {
	name   string
	id     *state.Identity
	router *Router
	ctrl   *Controller
	pins   *PinStore
}

func (n *testNode) node() state.Node {
	return n.id.Node()
}

type pipe struct {
	a, b *impl.MemLink
}

// virtualMesh wires routers together with in-memory links.
type virtualMesh struct {
	t     *testing.T
	nodes map[string]*testNode
	links map[[2]string]pipe
}

func newVirtualMesh(t *testing.T, names ...string) *virtualMesh {
	m := &virtualMesh{
		t:     t,
		nodes: make(map[string]*testNode),
		links: make(map[[2]string]pipe),
	}
	for _, name := range names {
		id := testIdentity(t, name)
		router := NewRouter(id.Node(), nil)
		pins, err := NewPinStore("", nil)
		require.NoError(t, err)
		m.nodes[name] = &testNode{
			name:   name,
			id:     id,
			router: router,
			ctrl:   NewController(router, state.StaticProfile{Id: id}, pins, nil),
			pins:   pins,
		}
	}
	t.Cleanup(m.Close)
	return m
}

func (m *virtualMesh) get(name string) *testNode {
	n, ok := m.nodes[name]
	require.True(m.t, ok, "unknown node %s", name)
	return n
}

func (m *virtualMesh) connect(a, b string) {
	l, r := impl.NewMemPipe()
	m.links[[2]string{a, b}] = pipe{l, r}
	m.get(a).router.AddNeighbor(l)
	m.get(b).router.AddNeighbor(r)
}

// linkEnd returns the end of the a-b link owned by a.
func (m *virtualMesh) linkEnd(a, b string) *impl.MemLink {
	if p, ok := m.links[[2]string{a, b}]; ok {
		return p.a
	}
	p, ok := m.links[[2]string{b, a}]
	require.True(m.t, ok, "no link between %s and %s", a, b)
	return p.b
}

func (m *virtualMesh) disconnect(a, b string) {
	require.NoError(m.t, m.linkEnd(a, b).Close())
}

// refresh runs one round of node list exchange everywhere.
func (m *virtualMesh) refresh() {
	for _, n := range m.nodes {
		n.router.AskForNodes()
	}
}

// knows reports whether a currently has a route to b.
func (m *virtualMesh) knows(a, b string) bool {
	_, ok := m.hops(a, b)
	return ok
}

func (m *virtualMesh) hops(a, b string) (uint32, bool) {
	r := m.get(a).router
	r.mu.Lock()
	defer r.mu.Unlock()
	best, ok := r.table.Best(m.get(b).id.Id)
	return best.Hops, ok
}

// converge refreshes until cond holds.
func (m *virtualMesh) converge(cond func() bool) {
	m.t.Helper()
	assert.Eventually(m.t, func() bool {
		m.refresh()
		return cond()
	}, 5*time.Second, 20*time.Millisecond)
}

// fullyConnected reports whether every node routes to every other node.
func (m *virtualMesh) fullyConnected() bool {
	for a := range m.nodes {
		for b := range m.nodes {
			if a == b {
				continue
			}
			if !m.knows(a, b) {
				return false
			}
		}
	}
	return true
}

func (m *virtualMesh) Close() {
	for _, n := range m.nodes {
		n.ctrl.Close()
		n.router.Close()
	}
}
