package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

var ipcTimeout = time.Second * 5

// IPCGet runs an inspection command against the node listening on the control
// socket at path.
func IPCGet(ctx context.Context, path, cmd string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcTimeout))
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	_, err = rw.WriteString(cmd + "\n")
	if err != nil {
		return "", err
	}
	err = rw.Flush()
	if err != nil {
		return "", err
	}

	res, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSuffix(res, "\x00"), nil
}

// HandleIPC answers one command read from rw. Replies are NUL terminated.
func HandleIPC(r *Router, rw *bufio.ReadWriter) error {
	cmd, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	var reply string
	switch strings.TrimSpace(cmd) {
	case "inspect":
		reply = inspect(r)
	case "nodes":
		sb := strings.Builder{}
		for _, n := range r.Nodes() {
			sb.WriteString(fmt.Sprintf("%s %s %s\n", n.Id, n.Username, n.PrimarySource))
		}
		reply = sb.String()
	default:
		reply = fmt.Sprintf("unknown command %q\n", strings.TrimSpace(cmd))
	}
	if _, err = rw.WriteString(reply + "\x00"); err != nil {
		return err
	}
	return rw.Flush()
}

func inspect(r *Router) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Self: %s\n", r.Self()))

	r.mu.Lock()
	defer r.mu.Unlock()

	// print neighbours
	sb.WriteString("\nNeighbours:\n")
	rt := make([]string, 0)
	for _, l := range r.links {
		status := "awaiting hello"
		if l.phase == phaseEstablished {
			status = l.remote.String()
		}
		rt = append(rt, fmt.Sprintf(" - %s over %s: %s", l.Id(), l.Transport(), status))
	}
	if len(rt) == 0 {
		rt = append(rt, " (none)")
	}
	slices.Sort(rt)
	sb.WriteString(strings.Join(rt, "\n") + "\n")

	// print route table
	sb.WriteString("\nRoute Table:\n")
	rt = make([]string, 0)
	for _, n := range r.table.Nodes() {
		for _, route := range r.table.Routes(n.Id) {
			rt = append(rt, fmt.Sprintf(" - %s via %s hops=%d", n, route.Via.Id(), route.Hops))
		}
	}
	if len(rt) == 0 {
		rt = append(rt, " (none)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")
	return sb.String()
}

// ServeIPC accepts control connections on a unix socket at path until ctx is
// cancelled.
func ServeIPC(ctx context.Context, path string, r *Router) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	config := net.ListenConfig{}
	listener, err := config.Listen(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	var wg sync.WaitGroup
	defer wg.Wait()
	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(ipcTimeout))
			rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
			if err := HandleIPC(r, rw); err != nil {
				r.log.Debug("ipc request failed", "error", err)
			}
		}()
	}
}
