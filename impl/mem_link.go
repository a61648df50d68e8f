package impl

import (
	"errors"
	"sync"

	"github.com/encodeous/lattice/state"
	"github.com/google/uuid"
)

var ErrLinkClosed = errors.New("link closed")

// MemLink is one end of an in-memory pipe. Frames are delivered in order on a
// goroutine owned by the receiving end, so Send never blocks.
type MemLink struct {
	id        uuid.UUID
	transport state.Transport
	peer      *MemLink

	mu     sync.Mutex
	queue  [][]byte
	recv   func([]byte)
	disc   func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewMemPipe returns two connected links. Closing either end disconnects both.
func NewMemPipe() (*MemLink, *MemLink) {
	return NewMemPipeOver(state.TransportMemory)
}

// NewMemPipeOver is NewMemPipe with both ends reporting the given transport.
func NewMemPipeOver(transport state.Transport) (*MemLink, *MemLink) {
	a := newMemLink(transport)
	b := newMemLink(transport)
	a.peer, b.peer = b, a
	go a.pump()
	go b.pump()
	return a, b
}

func newMemLink(transport state.Transport) *MemLink {
	return &MemLink{
		id:        uuid.New(),
		transport: transport,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (m *MemLink) Id() uuid.UUID {
	return m.id
}

func (m *MemLink) Transport() state.Transport {
	return m.transport
}

func (m *MemLink) Send(frame []byte) error {
	p := m.peer
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrLinkClosed
	}
	p.queue = append(p.queue, append([]byte(nil), frame...))
	p.mu.Unlock()
	p.signal()
	return nil
}

func (m *MemLink) OnReceive(cb func([]byte)) {
	m.mu.Lock()
	m.recv = cb
	m.mu.Unlock()
	m.signal()
}

func (m *MemLink) OnDisconnect(cb func()) {
	m.mu.Lock()
	closed := m.closed
	m.disc = cb
	m.mu.Unlock()
	if closed {
		cb()
	}
}

// Close disconnects both ends of the pipe. Frames still queued are discarded.
func (m *MemLink) Close() error {
	m.shutdown()
	m.peer.shutdown()
	return nil
}

func (m *MemLink) shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.queue = nil
	cb := m.disc
	close(m.done)
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (m *MemLink) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *MemLink) pump() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}
		for {
			m.mu.Lock()
			if m.closed || m.recv == nil || len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			frame := m.queue[0]
			m.queue = m.queue[1:]
			cb := m.recv
			m.mu.Unlock()
			cb(frame)
		}
	}
}
