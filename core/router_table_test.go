package core

import (
	"testing"

	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNeighbor struct {
	id        uuid.UUID
	transport state.Transport
}

func newFakeNeighbor(transport state.Transport) *fakeNeighbor {
	return &fakeNeighbor{id: uuid.New(), transport: transport}
}

func (f *fakeNeighbor) Id() uuid.UUID              { return f.id }
func (f *fakeNeighbor) Transport() state.Transport { return f.transport }
func (f *fakeNeighbor) Send([]byte) error          { return nil }
func (f *fakeNeighbor) OnReceive(func([]byte))     {}
func (f *fakeNeighbor) OnDisconnect(func())        {}
func (f *fakeNeighbor) Close() error               { return nil }

func TestRoutingTableBestRoute(t *testing.T) {
	self := testIdentity(t, "self")
	dest := testIdentity(t, "dest").Node()
	table := NewRoutingTable(self.Id)
	bt := newFakeNeighbor(state.TransportBluetooth)
	wifi := newFakeNeighbor(state.TransportWifiDirect)

	assert.True(t, table.AddRoute(dest, bt, 3))
	assert.True(t, table.AddRoute(dest, wifi, 1))
	assert.False(t, table.AddRoute(dest, wifi, 1))

	best, ok := table.Best(dest.Id)
	require.True(t, ok)
	assert.Equal(t, wifi.Id(), best.Via.Id())
	assert.Equal(t, uint32(1), best.Hops)

	nodes := table.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, state.TransportWifiDirect, nodes[0].PrimarySource)

	hops := []uint32{}
	for _, r := range table.Routes(dest.Id) {
		hops = append(hops, r.Hops)
	}
	assert.Equal(t, []uint32{1, 3}, hops)

	assert.False(t, table.AddRoute(self.Node(), bt, 0))
	assert.Equal(t, 1, table.Len())
}

func TestRoutingTableRemoveViaPrunes(t *testing.T) {
	table := NewRoutingTable(testIdentity(t, "self").Id)
	dest := testIdentity(t, "dest").Node()
	other := testIdentity(t, "other").Node()
	n1 := newFakeNeighbor(state.TransportMemory)
	n2 := newFakeNeighbor(state.TransportMemory)

	table.AddRoute(dest, n1, 0)
	table.AddRoute(dest, n2, 2)
	table.AddRoute(other, n1, 1)

	assert.True(t, table.RemoveVia(n1.Id()))
	assert.False(t, table.RemoveVia(n1.Id()))

	_, ok := table.Lookup(other.Id)
	assert.False(t, ok, "nodes without routes are pruned")
	best, ok := table.Best(dest.Id)
	require.True(t, ok)
	assert.Equal(t, uint32(2), best.Hops)
}

func TestRoutingTableWithdrawKeepsDirectRoute(t *testing.T) {
	table := NewRoutingTable(testIdentity(t, "self").Id)
	neigh := testIdentity(t, "neigh").Node()
	dest := testIdentity(t, "dest").Node()
	other := testIdentity(t, "other").Node()
	n := newFakeNeighbor(state.TransportMemory)

	table.AddRoute(neigh, n, 0)
	table.AddRoute(dest, n, 1)
	table.AddRoute(other, n, 1)

	keep := map[state.NodeId]struct{}{other.Id: {}}
	assert.True(t, table.Withdraw(n.Id(), neigh.Id, keep))
	assert.False(t, table.Withdraw(n.Id(), neigh.Id, keep))

	ids := []state.NodeId{}
	for _, node := range table.Nodes() {
		ids = append(ids, node.Id)
	}
	assert.ElementsMatch(t, []state.NodeId{neigh.Id, other.Id}, ids)
}

func TestRoutingTableReportSplitHorizon(t *testing.T) {
	table := NewRoutingTable(testIdentity(t, "self").Id)
	a := testIdentity(t, "a").Node()
	b := testIdentity(t, "b").Node()
	c := testIdentity(t, "c").Node()
	na := newFakeNeighbor(state.TransportMemory)
	nb := newFakeNeighbor(state.TransportMemory)

	table.AddRoute(a, na, 0)
	table.AddRoute(b, nb, 0)
	// c is reachable cheaply through a, and expensively through b
	table.AddRoute(c, na, 1)
	table.AddRoute(c, nb, 4)

	hopsOf := func(entries []protocol.NodeEntry) map[state.NodeId]uint32 {
		out := make(map[state.NodeId]uint32)
		for _, e := range entries {
			out[e.Node.Id] = e.Hops
		}
		return out
	}

	toA := hopsOf(table.Report(na.Id()))
	assert.Empty(t, cmp.Diff(map[state.NodeId]uint32{b.Id: 0, c.Id: 4}, toA))

	toB := hopsOf(table.Report(nb.Id()))
	assert.Empty(t, cmp.Diff(map[state.NodeId]uint32{a.Id: 0, c.Id: 1}, toB))

	all := hopsOf(table.Report(uuid.Nil))
	assert.Empty(t, cmp.Diff(map[state.NodeId]uint32{a.Id: 0, b.Id: 0, c.Id: 1}, all))
}

func TestRoutingTableRecordReplacement(t *testing.T) {
	table := NewRoutingTable(testIdentity(t, "self").Id)
	genuine := testIdentity(t, "dest")
	forged := testIdentity(t, "forged")
	impostor := genuine.Node()
	impostor.SigningKey = forged.Node().SigningKey
	direct := newFakeNeighbor(state.TransportMemory)
	relay := newFakeNeighbor(state.TransportMemory)

	table.AddRoute(genuine.Node(), direct, 0)
	// a longer route never overrides the record learned directly
	table.AddRoute(impostor, relay, 2)
	node, ok := table.Lookup(genuine.Id)
	require.True(t, ok)
	assert.True(t, node.SigningKey.Equal(genuine.Node().SigningKey))

	table.RemoveVia(direct.Id())
	table.AddRoute(impostor, relay, 2)
	node, _ = table.Lookup(genuine.Id)
	assert.True(t, node.SigningKey.Equal(impostor.SigningKey))
}
