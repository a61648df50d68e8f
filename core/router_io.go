package core

import (
	"fmt"

	"github.com/encodeous/lattice/perf"
	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
)

func (r *Router) handleFrame(l *link, frame []byte) {
	perf.FramesRecvPerSecond.Add(1)
	perf.RecvBytesPerSecond.Add(float64(len(frame)))

	f, err := protocol.UnmarshalFrame(frame)
	if err != nil {
		r.Log(MalformedFrame, "received undecodable frame", "neigh", l.Id(), "error", err)
		return
	}

	switch m := f.(type) {
	case *protocol.HelloRequest:
		r.sendFrame(l, &protocol.HelloResponse{Node: r.self})
		return
	case *protocol.HelloResponse:
		r.handleHelloResponse(l, m.Node)
		return
	}

	r.mu.Lock()
	phase := l.phase
	r.mu.Unlock()
	if phase != phaseEstablished {
		r.Log(OutOfProtocol, "received frame before handshake", "neigh", l.Id(), "frame", fmt.Sprintf("%T", f))
		return
	}

	switch m := f.(type) {
	case *protocol.AskNodesRequest:
		r.mu.Lock()
		entries := r.table.Report(l.Id())
		r.mu.Unlock()
		r.sendFrame(l, &protocol.AskNodesResponse{Entries: entries})
	case *protocol.AskNodesResponse:
		r.handleNodeReport(l, m.Entries)
	case *protocol.Routed:
		r.handleRouted(m)
	}
}

func (r *Router) handleHelloResponse(l *link, node state.Node) {
	if node.Id == r.self.Id {
		r.Log(OutOfProtocol, "neighbour claims our own id", "neigh", l.Id())
		return
	}
	r.mu.Lock()
	if l.phase == phaseDisconnected {
		r.mu.Unlock()
		return
	}
	changed := false
	if l.phase == phaseEstablished && l.remote != node.Id {
		// the peer behind this link changed identity
		changed = r.table.RemoveVia(l.Id())
	}
	l.phase = phaseEstablished
	l.remote = node.Id
	if l.hello != nil {
		l.hello.Stop()
	}
	if r.table.AddRoute(node, l, 0) {
		changed = true
	}
	r.mu.Unlock()

	r.Log(RouteAdded, "neighbour established", "neigh", l.Id(), "node", node, "transport", l.Transport())
	if changed {
		r.notifyNodesChanged()
	}
}

func (r *Router) handleNodeReport(l *link, entries []protocol.NodeEntry) {
	keep := make(map[state.NodeId]struct{}, len(entries))
	changed := false

	r.mu.Lock()
	if l.phase != phaseEstablished {
		r.mu.Unlock()
		return
	}
	for _, entry := range entries {
		if entry.Node.Id == r.self.Id || entry.Node.Id == l.remote {
			continue
		}
		if entry.Hops >= state.MaxHops-1 {
			continue
		}
		hops := entry.Hops + 1
		keep[entry.Node.Id] = struct{}{}
		if r.table.AddRoute(entry.Node, l, hops) {
			changed = true
		}
	}
	if r.table.Withdraw(l.Id(), l.remote, keep) {
		changed = true
		r.Log(RouteWithdrawn, "withdrew routes missing from neighbour report", "neigh", l.Id())
	}
	r.mu.Unlock()

	if changed {
		r.notifyNodesChanged()
	}
}

func (r *Router) handleRouted(m *protocol.Routed) {
	if m.Ttl == 0 {
		perf.DroppedPerSecond.Add(1)
		r.log.Debug("dropped routed message with exhausted ttl", "id", m.Id, "src", m.Src, "dest", m.Dest)
		return
	}

	if m.Dest == r.self.Id {
		r.mu.Lock()
		sender, ok := r.table.Lookup(m.Src)
		cb := r.onMessage
		r.mu.Unlock()
		if !ok {
			perf.DroppedPerSecond.Add(1)
			r.Log(UnknownSender, "dropped message from unknown node", "id", m.Id, "src", m.Src)
			return
		}
		perf.DeliveredPerSecond.Add(1)
		r.Log(MessageDelivered, "received message", "id", m.Id, "src", sender)
		cb(ReceivedMessage{
			Id:        m.Id,
			Payload:   m.Payload,
			Signature: m.Signature,
			Sender:    sender,
		})
		return
	}

	m.Ttl--
	if m.Ttl == 0 {
		perf.DroppedPerSecond.Add(1)
		r.log.Debug("dropped routed message at hop limit", "id", m.Id, "dest", m.Dest)
		return
	}

	r.mu.Lock()
	route, ok := r.table.Best(m.Dest)
	r.mu.Unlock()
	if !ok {
		perf.DroppedPerSecond.Add(1)
		r.log.Debug("dropped routed message without route", "id", m.Id, "dest", m.Dest)
		return
	}
	perf.ForwardedPerSecond.Add(1)
	r.Log(MessageForwarded, "forwarding message", "id", m.Id, "dest", m.Dest, "via", route.Via.Id(), "ttl", m.Ttl)
	r.sendFrame(route.Via, m)
}

func (r *Router) handleDisconnect(l *link) {
	r.mu.Lock()
	if l.phase == phaseDisconnected {
		r.mu.Unlock()
		return
	}
	l.phase = phaseDisconnected
	if l.hello != nil {
		l.hello.Stop()
	}
	delete(r.links, l.Id())
	changed := r.table.RemoveVia(l.Id())
	r.mu.Unlock()

	r.Log(NeighbourLost, "neighbour disconnected", "neigh", l.Id(), "node", l.remote)
	if changed {
		r.notifyNodesChanged()
	}
}
