package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// taskGroup supervises the scheduler's periodic side tasks. Each task
// loops on its own cadence, traps panics per iteration, and exits when
// the context is cancelled. Wait blocks until every task has returned,
// which must happen before the store pool is torn down.
type taskGroup struct {
	wg     sync.WaitGroup
	logger *zap.Logger
}

func newTaskGroup(logger *zap.Logger) *taskGroup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &taskGroup{logger: logger}
}

// Go spawns a named periodic task. When immediate is set the task runs
// once before the first tick. A task iteration's error or panic is
// logged and never halts the loop or its siblings.
func (g *taskGroup) Go(ctx context.Context, name string, interval time.Duration, immediate bool, fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		if immediate {
			g.runSafe(ctx, name, fn)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.logger.Debug("side task stopped", zap.String("task", name))
				return
			case <-ticker.C:
				g.runSafe(ctx, name, fn)
			}
		}
	}()
}

func (g *taskGroup) runSafe(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("side task panicked",
				zap.String("task", name),
				zap.Any("panic", r),
			)
		}
	}()
	if ctx.Err() != nil {
		return
	}
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		g.logger.Warn("side task iteration failed",
			zap.String("task", name),
			zap.Error(err),
		)
	}
}

// Wait blocks until all spawned tasks have terminated.
func (g *taskGroup) Wait() {
	g.wg.Wait()
}
