package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/encodeous/lattice/perf"
	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
	"github.com/google/uuid"
)

type RouterEvent int

// trace events

const (
	RouteAdded RouterEvent = iota
	RouteWithdrawn
	NeighbourLost
	MessageForwarded
	MessageDelivered
)

// warn events

const (
	OutOfProtocol RouterEvent = iota + 1000
	MessageDropped
	UnknownSender
	MalformedFrame
)

func (e RouterEvent) String() string {
	switch e {
	case RouteAdded:
		return "ROUTE_ADDED"
	case RouteWithdrawn:
		return "ROUTE_WITHDRAWN"
	case NeighbourLost:
		return "NEIGHBOUR_LOST"
	case MessageForwarded:
		return "MESSAGE_FORWARDED"
	case MessageDelivered:
		return "MESSAGE_DELIVERED"
	case OutOfProtocol:
		return "OUT_OF_PROTOCOL"
	case MessageDropped:
		return "MESSAGE_DROPPED"
	case UnknownSender:
		return "UNKNOWN_SENDER"
	case MalformedFrame:
		return "MALFORMED_FRAME"
	}
	return fmt.Sprintf("EVENT_%d", int(e))
}

// ReceivedMessage is a routed message addressed to this node, delivered before
// any authentication.
type ReceivedMessage struct {
	Id        uint64
	Payload   []byte
	Signature []byte
	Sender    state.Node
}

type linkPhase int

const (
	phaseConnecting linkPhase = iota
	phaseAwaitingHello
	phaseEstablished
	phaseDisconnected
)

type link struct {
	Neighbor
	phase  linkPhase
	remote state.NodeId
	hello  *time.Timer
}

// Router maintains the mesh topology and moves opaque signed payloads between
// directly and indirectly connected nodes.
type Router struct {
	log  *slog.Logger
	self state.Node

	// mu guards everything below. It is never held across a send.
	mu             sync.Mutex
	table          *RoutingTable
	links          map[uuid.UUID]*link
	onMessage      func(ReceivedMessage)
	onNodesChanged func()
}

func NewRouter(self state.Node, log *slog.Logger) *Router {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Router{
		log:            log.With("module", "router"),
		self:           self,
		table:          NewRoutingTable(self.Id),
		links:          make(map[uuid.UUID]*link),
		onMessage:      func(ReceivedMessage) {},
		onNodesChanged: func() {},
	}
}

func (r *Router) Log(event RouterEvent, desc string, args ...any) {
	level := slog.LevelDebug
	if event >= OutOfProtocol {
		level = slog.LevelWarn
	}
	r.log.Log(context.Background(), level, fmt.Sprintf("%s %s", event.String(), desc), args...)
}

func (r *Router) Self() state.Node {
	return r.self
}

// SetOnMessageReceived replaces the handler for messages addressed to this node.
func (r *Router) SetOnMessageReceived(cb func(ReceivedMessage)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMessage = cb
}

// SetOnNodesChanged replaces the handler fired after every topology change.
func (r *Router) SetOnNodesChanged(cb func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onNodesChanged = cb
}

// AddNeighbor registers a directly reachable peer and starts the handshake.
// The hello goes out before any frame is read, so on every link our
// HelloRequest precedes our HelloResponse and both precede routed traffic.
func (r *Router) AddNeighbor(n Neighbor) {
	l := &link{Neighbor: n}
	r.mu.Lock()
	r.links[n.Id()] = l
	l.phase = phaseAwaitingHello
	l.hello = time.AfterFunc(state.HelloTimeout, func() {
		r.helloTimeout(l)
	})
	r.mu.Unlock()

	r.sendFrame(n, &protocol.HelloRequest{Node: r.self})
	n.OnDisconnect(func() {
		r.handleDisconnect(l)
	})
	n.OnReceive(func(frame []byte) {
		r.handleFrame(l, frame)
	})
}

func (r *Router) helloTimeout(l *link) {
	r.mu.Lock()
	phase := l.phase
	r.mu.Unlock()
	if phase != phaseAwaitingHello {
		return
	}
	r.Log(OutOfProtocol, "handshake timed out", "neigh", l.Id())
	if err := l.Close(); err != nil {
		r.log.Debug("error closing neighbour", "neigh", l.Id(), "error", err)
	}
}

// SendMessage hands a signed payload to the best route towards dest. It does not
// wait for delivery.
func (r *Router) SendMessage(payload, signature []byte, dest state.Node) (uint64, error) {
	r.mu.Lock()
	route, ok := r.table.Best(dest.Id)
	r.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNodeNotAvailable, dest)
	}
	msg := &protocol.Routed{
		Id:        NewMessageId(),
		Src:       r.self.Id,
		Dest:      dest.Id,
		Payload:   payload,
		Signature: signature,
		Ttl:       state.DefaultTTL,
	}
	r.sendFrame(route.Via, msg)
	return msg.Id, nil
}

// Nodes returns a snapshot of every reachable node.
func (r *Router) Nodes() []state.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Nodes()
}

// Routes returns every known route to the node, shortest first.
func (r *Router) Routes(id state.NodeId) []Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Routes(id)
}

// AskForNodes requests the node list of every established neighbour.
func (r *Router) AskForNodes() {
	for _, l := range r.established() {
		r.sendFrame(l, &protocol.AskNodesRequest{})
	}
}

// Neighbors returns the number of neighbours that completed the handshake.
func (r *Router) Neighbors() int {
	return len(r.established())
}

// Close disconnects every neighbour.
func (r *Router) Close() {
	r.mu.Lock()
	links := make([]*link, 0, len(r.links))
	for _, l := range r.links {
		links = append(links, l)
	}
	r.mu.Unlock()
	for _, l := range links {
		if err := l.Close(); err != nil {
			r.log.Debug("error closing neighbour", "neigh", l.Id(), "error", err)
		}
	}
}

func (r *Router) established() []*link {
	r.mu.Lock()
	defer r.mu.Unlock()
	links := make([]*link, 0, len(r.links))
	for _, l := range r.links {
		if l.phase == phaseEstablished {
			links = append(links, l)
		}
	}
	return links
}

func (r *Router) sendFrame(n Neighbor, f protocol.Frame) {
	b, err := protocol.MarshalFrame(f)
	if err != nil {
		r.log.Error("failed to encode frame", "frame", fmt.Sprintf("%T", f), "error", err)
		return
	}
	if err = n.Send(b); err != nil {
		// the neighbour reports the failure through its disconnect callback
		r.log.Debug("failed to send frame", "neigh", n.Id(), "error", err)
		return
	}
	perf.FramesSentPerSecond.Add(1)
	perf.SentBytesPerSecond.Add(float64(len(b)))
}

func (r *Router) notifyNodesChanged() {
	r.mu.Lock()
	cb := r.onNodesChanged
	r.mu.Unlock()
	cb()
}

// NewMessageId returns a random 63-bit message id.
func NewMessageId() uint64 {
	return uint64(rand.Int64())
}
