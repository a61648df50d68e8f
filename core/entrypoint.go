package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/encodeous/lattice/impl"
	"github.com/encodeous/lattice/state"
	"github.com/encodeous/tint"
	"github.com/gaissmai/bart"
	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/sync/errgroup"
)

var (
	// DialRetryDelay is the pause between attempts to reach a configured peer.
	DialRetryDelay = time.Second * 5
	// DebugAddr serves expvar metrics when not empty.
	DebugAddr = ""
)

// Module is a long running component started with the node, such as an
// application dispatcher.
type Module interface {
	Serve(ctx context.Context) error
}

// Lattice is a running node: the router, its dispatch controller, and the
// transports feeding it.
type Lattice struct {
	*state.Env
	Router     *Router
	Controller *Controller
	Pins       *PinStore
}

// NewLogger builds the console logger, fanned out to the log file if one is
// configured.
func NewLogger(cfg state.LocalCfg, level slog.Level) (*slog.Logger, func() error, error) {
	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: cfg.Username,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}),
	}
	closer := func() error { return nil }

	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		closer = f.Close
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// New assembles a node from its configuration without starting any I/O.
func New(ctx context.Context, cfg state.LocalCfg, log *slog.Logger) (*Lattice, error) {
	if err := state.NodeConfigValidator(&cfg); err != nil {
		return nil, err
	}
	env := state.NewEnv(ctx, cfg, log)
	id := cfg.Identity()

	pins, err := NewPinStore(cfg.PinPath, env.Log)
	if err != nil {
		return nil, fmt.Errorf("load pins: %w", err)
	}
	router := NewRouter(id.Node(), env.Log)
	return &Lattice{
		Env:        env,
		Router:     router,
		Controller: NewController(router, state.StaticProfile{Id: id}, pins, env.Log),
		Pins:       pins,
	}, nil
}

// Run starts the transports, the periodic node exchange and every module, and
// blocks until the node is cancelled or a module fails.
func (l *Lattice) Run(modules ...Module) error {
	g, ctx := errgroup.WithContext(l.Context)

	l.Controller.Start(l.Env)

	if l.Listen.IsValid() {
		g.Go(func() error {
			return impl.ListenTCP(ctx, l.Listen.String(), l.Log, l.allowFunc(), func(link *impl.TCPLink) {
				l.Router.AddNeighbor(link)
			})
		})
	}
	if l.IPCPath != "" {
		g.Go(func() error {
			return ServeIPC(ctx, l.IPCPath, l.Router)
		})
	}
	for _, peer := range l.Peers {
		g.Go(func() error {
			l.maintainPeer(ctx, peer.String())
			return nil
		})
	}
	for _, m := range modules {
		g.Go(func() error {
			return m.Serve(ctx)
		})
	}

	<-ctx.Done()
	l.Log.Info("stopping", "reason", context.Cause(l.Context))
	l.Cancel(context.Canceled)
	l.Router.Close()
	err := g.Wait()
	l.Wait()
	l.Controller.Close()
	return err
}

// allowFunc builds the source address filter for accepted links from the
// allow list, or nil when everyone may connect.
func (l *Lattice) allowFunc() func(netip.Addr) bool {
	if len(l.Allow) == 0 {
		return nil
	}
	acl := new(bart.Table[struct{}])
	for _, pfx := range l.Allow {
		acl.Insert(pfx.Masked(), struct{}{})
	}
	return acl.Contains
}

// maintainPeer keeps a TCP link to addr up, redialling whenever it drops.
func (l *Lattice) maintainPeer(ctx context.Context, addr string) {
	for ctx.Err() == nil {
		link, err := impl.DialTCP(ctx, addr)
		if err != nil {
			l.Log.Debug("failed to reach peer", "addr", addr, "error", err)
		} else {
			l.Log.Info("connected to peer", "addr", addr)
			l.Router.AddNeighbor(link)
			select {
			case <-link.Done():
				l.Log.Info("lost peer", "addr", addr)
			case <-ctx.Done():
				_ = link.Close()
				return
			}
		}
		select {
		case <-time.After(DialRetryDelay):
		case <-ctx.Done():
		}
	}
}

// Start runs a node until SIGINT or SIGTERM.
func Start(cfg state.LocalCfg, level slog.Level, modules func(*Lattice) []Module) error {
	log, closeLog, err := NewLogger(cfg, level)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	if DebugAddr != "" {
		go func() {
			l.Log.Info("serving metrics", "addr", DebugAddr)
			if err := http.ListenAndServe(DebugAddr, nil); err != nil {
				l.Log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	l.Log.Info("lattice has been initialized. To gracefully exit, send SIGINT or Ctrl+C.", "node", l.Router.Self())
	err = l.Run(modules(l)...)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
