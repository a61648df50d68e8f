package core

import (
	"slices"

	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
	"github.com/google/uuid"
)

// Route is one path to a node: the neighbour to hand the message to, and the
// number of relays behind it.
type Route struct {
	Via  Neighbor
	Hops uint32
}

type tableEntry struct {
	node   state.Node
	routes map[uuid.UUID]Route
}

// RoutingTable maps every known node to its set of routes. It is not safe for
// concurrent use; Router guards it with a single mutex.
type RoutingTable struct {
	self  state.NodeId
	nodes map[state.NodeId]*tableEntry
}

func NewRoutingTable(self state.NodeId) *RoutingTable {
	return &RoutingTable{
		self:  self,
		nodes: make(map[state.NodeId]*tableEntry),
	}
}

func (e *tableEntry) best() (Route, bool) {
	var (
		best  Route
		found bool
	)
	for _, r := range e.routes {
		if !found || r.Hops < best.Hops {
			best = r
			found = true
		}
	}
	return best, found
}

// AddRoute records a route to node via a neighbour, replacing any previous
// route through the same neighbour. The stored node record is replaced when the
// new route is at least as short as the current best, so records learned
// directly win over relayed ones. It reports whether the table changed.
func (t *RoutingTable) AddRoute(node state.Node, via Neighbor, hops uint32) bool {
	if node.Id == t.self {
		return false
	}
	e, ok := t.nodes[node.Id]
	if !ok {
		t.nodes[node.Id] = &tableEntry{
			node:   node,
			routes: map[uuid.UUID]Route{via.Id(): {Via: via, Hops: hops}},
		}
		return true
	}
	changed := false
	if best, _ := e.best(); hops <= best.Hops {
		changed = !sameKeys(e.node, node)
		e.node = node
	}
	old, ok := e.routes[via.Id()]
	if !ok || old.Hops != hops {
		changed = true
	}
	e.routes[via.Id()] = Route{Via: via, Hops: hops}
	return changed
}

// RemoveVia drops every route through the neighbour and prunes nodes left
// without routes.
func (t *RoutingTable) RemoveVia(neigh uuid.UUID) bool {
	changed := false
	for id, e := range t.nodes {
		if _, ok := e.routes[neigh]; !ok {
			continue
		}
		delete(e.routes, neigh)
		changed = true
		if len(e.routes) == 0 {
			delete(t.nodes, id)
		}
	}
	return changed
}

// Withdraw removes routes through the neighbour to every node not in keep. The
// direct route to the neighbour itself is never withdrawn.
func (t *RoutingTable) Withdraw(neigh uuid.UUID, direct state.NodeId, keep map[state.NodeId]struct{}) bool {
	changed := false
	for id, e := range t.nodes {
		if id == direct {
			continue
		}
		if _, ok := keep[id]; ok {
			continue
		}
		if _, ok := e.routes[neigh]; !ok {
			continue
		}
		delete(e.routes, neigh)
		changed = true
		if len(e.routes) == 0 {
			delete(t.nodes, id)
		}
	}
	return changed
}

// Best returns the route with the strictly lowest hop count to id.
func (t *RoutingTable) Best(id state.NodeId) (Route, bool) {
	e, ok := t.nodes[id]
	if !ok {
		return Route{}, false
	}
	return e.best()
}

func (t *RoutingTable) Lookup(id state.NodeId) (state.Node, bool) {
	e, ok := t.nodes[id]
	if !ok {
		return state.Node{}, false
	}
	return e.node, true
}

// Routes returns every route to id, shortest first.
func (t *RoutingTable) Routes(id state.NodeId) []Route {
	e, ok := t.nodes[id]
	if !ok {
		return nil
	}
	routes := make([]Route, 0, len(e.routes))
	for _, r := range e.routes {
		routes = append(routes, r)
	}
	slices.SortFunc(routes, func(a, b Route) int {
		return int(a.Hops) - int(b.Hops)
	})
	return routes
}

// Nodes returns a snapshot of every known node, annotated with the transport of
// its best route and sorted by id.
func (t *RoutingTable) Nodes() []state.Node {
	nodes := make([]state.Node, 0, len(t.nodes))
	for _, e := range t.nodes {
		n := e.node
		if best, ok := e.best(); ok {
			n.PrimarySource = best.Via.Transport()
		}
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b state.Node) int {
		return compareIds(a.Id, b.Id)
	})
	return nodes
}

// Report lists every known node with its minimum hop count, as advertised to
// the neighbour asking. Routes through the asking neighbour are not counted,
// and nodes only reachable through it are left out.
func (t *RoutingTable) Report(asker uuid.UUID) []protocol.NodeEntry {
	entries := make([]protocol.NodeEntry, 0, len(t.nodes))
	for _, e := range t.nodes {
		var (
			hops  uint32
			found bool
		)
		for via, r := range e.routes {
			if via == asker {
				continue
			}
			if !found || r.Hops < hops {
				hops = r.Hops
				found = true
			}
		}
		if found {
			entries = append(entries, protocol.NodeEntry{Node: e.node, Hops: hops})
		}
	}
	slices.SortFunc(entries, func(a, b protocol.NodeEntry) int {
		return compareIds(a.Node.Id, b.Node.Id)
	})
	return entries
}

func (t *RoutingTable) Len() int {
	return len(t.nodes)
}

func compareIds(a, b state.NodeId) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sameKeys(a, b state.Node) bool {
	if a.Username != b.Username {
		return false
	}
	if (a.SigningKey == nil) != (b.SigningKey == nil) || (a.SessionKey == nil) != (b.SessionKey == nil) {
		return false
	}
	if a.SigningKey != nil && !a.SigningKey.Equal(b.SigningKey) {
		return false
	}
	if a.SessionKey != nil && !a.SessionKey.Equal(b.SessionKey) {
		return false
	}
	return true
}
