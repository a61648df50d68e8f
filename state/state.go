package state

import (
	"context"
	"log/slog"
	"sync"
)

// Env carries the process-wide context, logger and configuration of a node.
// Env can be read from any Goroutine.
type Env struct {
	LocalCfg
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger

	tasks sync.WaitGroup
}

func NewEnv(parent context.Context, cfg LocalCfg, log *slog.Logger) *Env {
	ctx, cancel := context.WithCancelCause(parent)
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Env{
		LocalCfg: cfg,
		Context:  ctx,
		Cancel:   cancel,
		Log:      log,
	}
}

// Wait blocks until every task started by the Env has returned.
func (e *Env) Wait() {
	e.tasks.Wait()
}
