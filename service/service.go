// Package service holds the application dispatchers that sit on top of the
// dispatch controller's request/response primitive.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/encodeous/lattice/core"
	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
)

// Dispatcher is the subset of the controller the services use.
type Dispatcher interface {
	Send(payload protocol.Payload, dest state.Node) (uint64, error)
	Respond(requestId uint64, code protocol.ErrorCode, body protocol.ResponseBody, dest state.Node) error
	Request(ctx context.Context, payload protocol.Payload, dest state.Node) (*protocol.Response, error)
	Subscribe() *core.Subscription[core.AcceptedMessage]
	SubscribeNodes() *core.Subscription[[]state.Node]
}

// Service is a long running consumer of accepted messages.
type Service interface {
	Serve(ctx context.Context) error
}

type handler func(ctx context.Context, m core.AcceptedMessage)

// serve feeds every accepted message to handle until ctx is done. Handlers run
// inline; handlers that need a round trip of their own use spawn.
func serve(ctx context.Context, d Dispatcher, log *slog.Logger, handle handler) error {
	sub := d.Subscribe()
	defer sub.Close()
	dropped := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-sub.C():
			if !ok {
				return nil
			}
			if _, isResp := m.Payload.(*protocol.Response); isResp {
				continue
			}
			handle(ctx, m)
			if n := sub.Dropped(); n > dropped {
				log.Warn("service is falling behind", "dropped", n-dropped)
				dropped = n
			}
		}
	}
}

// ack answers a request without a body.
func ack(d Dispatcher, log *slog.Logger, m core.AcceptedMessage, code protocol.ErrorCode) {
	if err := d.Respond(m.Id, code, nil, m.Sender); err != nil {
		log.Debug("failed to respond", "request", m.Id, "to", m.Sender, "error", err)
	}
}

// tasks tracks goroutines started by a handler so Serve can wait for them.
type tasks struct {
	wg sync.WaitGroup
}

func (t *tasks) spawn(fun func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fun()
	}()
}

func (t *tasks) wait() {
	t.wg.Wait()
}
