package state

import (
	"fmt"
	"time"
)

// Go runs fun on a new Goroutine tracked by the Env. A panic cancels the Env.
func (e *Env) Go(fun func(*Env) error) {
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				e.Cancel(fmt.Errorf("panic: %v", r))
			}
		}()
		if err := fun(e); err != nil && e.Context.Err() == nil {
			e.Log.Error("task failed", "error", err)
		}
	}()
}

// ScheduleTask runs fun once after delay, unless the Env is cancelled first.
func (e *Env) ScheduleTask(fun func(*Env) error, delay time.Duration) {
	e.Go(func(e *Env) error {
		select {
		case <-e.Context.Done():
			return nil
		case <-time.After(delay):
			return fun(e)
		}
	})
}

func (e *Env) repeatedTask(fun func(*Env) error, delay time.Duration) error {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-e.Context.Done():
			return nil
		case <-ticker.C:
			if err := fun(e); err != nil {
				e.Log.Warn("repeated task failed", "error", err)
			}
		}
	}
}

// RepeatTask runs fun every delay until the Env is cancelled.
func (e *Env) RepeatTask(fun func(*Env) error, delay time.Duration) {
	e.Go(func(e *Env) error {
		return e.repeatedTask(fun, delay)
	})
}
