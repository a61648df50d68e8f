package impl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
	"github.com/google/uuid"
	"golang.org/x/net/netutil"
)

// TCPLink carries length-delimited frames over a stream connection.
type TCPLink struct {
	id     uuid.UUID
	Conn   net.Conn
	remote bool

	wmu  sync.Mutex
	w    *bufio.Writer
	mu   sync.Mutex
	disc func()
	down bool
	read sync.Once
	once sync.Once
	done chan struct{}
}

func NewTCPLink(conn net.Conn, remote bool) *TCPLink {
	return &TCPLink{
		id:     uuid.New(),
		Conn:   conn,
		remote: remote,
		w:      bufio.NewWriter(conn),
		done:   make(chan struct{}),
	}
}

// Done is closed once the link is down.
func (t *TCPLink) Done() <-chan struct{} {
	return t.done
}

func (t *TCPLink) Id() uuid.UUID {
	return t.id
}

func (t *TCPLink) Transport() state.Transport {
	return state.TransportTCP
}

// IsRemote reports whether the peer initiated the connection.
func (t *TCPLink) IsRemote() bool {
	return t.remote
}

func (t *TCPLink) Send(frame []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	err := protocol.WriteFrame(t.w, frame)
	if err == nil {
		err = t.w.Flush()
	}
	if err != nil && !errors.Is(err, protocol.ErrPacketSize) {
		t.disconnect()
	}
	return err
}

// OnReceive starts the reader. Frames stay in the socket buffer until then.
func (t *TCPLink) OnReceive(cb func([]byte)) {
	t.read.Do(func() {
		go func() {
			r := bufio.NewReader(t.Conn)
			for {
				frame, err := protocol.ReadFrame(r)
				if err != nil {
					t.disconnect()
					return
				}
				cb(frame)
			}
		}()
	})
}

func (t *TCPLink) OnDisconnect(cb func()) {
	t.mu.Lock()
	down := t.down
	t.disc = cb
	t.mu.Unlock()
	if down {
		cb()
	}
}

func (t *TCPLink) Close() error {
	t.disconnect()
	return nil
}

func (t *TCPLink) disconnect() {
	t.once.Do(func() {
		_ = t.Conn.Close()
		t.mu.Lock()
		t.down = true
		cb := t.disc
		t.mu.Unlock()
		close(t.done)
		if cb != nil {
			cb()
		}
	})
}

// ListenTCP accepts connections on addr until ctx is cancelled, handing each
// one to accept as a new link. Connections from addresses allow rejects are
// closed immediately; a nil allow accepts everyone.
func ListenTCP(ctx context.Context, addr string, log *slog.Logger, allow func(netip.Addr) bool, accept func(*TCPLink)) error {
	config := net.ListenConfig{}
	l, err := config.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	listener := netutil.LimitListener(l, state.MaxTCPNeighbours)
	log.Info("listening on", "addr", listener.Addr())
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn("failed to accept connection", "error", err)
				continue
			}
			return err
		}
		if allow != nil {
			remote, err := netip.ParseAddrPort(conn.RemoteAddr().String())
			if err != nil || !allow(remote.Addr().Unmap()) {
				log.Warn("refused connection", "remote", conn.RemoteAddr())
				_ = conn.Close()
				continue
			}
		}
		log.Debug("accepted connection", "remote", conn.RemoteAddr())
		accept(NewTCPLink(conn, true))
	}
}

// DialTCP connects to a peer listening on addr.
func DialTCP(ctx context.Context, addr string) (*TCPLink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewTCPLink(conn, false), nil
}
