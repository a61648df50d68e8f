package core

import (
	"github.com/encodeous/lattice/state"
	"github.com/google/uuid"
)

// Neighbor is a bidirectional frame channel to one directly reachable peer.
// Transport failures are reported through the disconnect callback, which fires
// at most once.
type Neighbor interface {
	Id() uuid.UUID
	Transport() state.Transport
	// Send queues one frame for delivery to the peer.
	Send(frame []byte) error
	// OnReceive registers the frame handler. Frames that arrive earlier are held
	// until a handler is registered.
	OnReceive(func(frame []byte))
	// OnDisconnect registers the disconnect handler. It is invoked immediately if
	// the link is already down.
	OnDisconnect(func())
	Close() error
}
