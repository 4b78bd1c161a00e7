// Package workpool applies insights metric write-backs to the store with a
// fixed ceiling on concurrent statements, so a large account cannot exhaust
// the connection pool during a sync.
package workpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config configures a Pool.
type Config struct {
	MaxConcurrent int // concurrent store writes (default: 50)
}

func DefaultConfig() Config {
	return Config{MaxConcurrent: 50}
}

// Pool applies Writes for one insights level at a time.
type Pool struct {
	limit  int
	logger *zap.Logger
}

func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &Pool{
		limit:  config.MaxConcurrent,
		logger: logger.Named("workpool"),
	}
}

// MaxConcurrent reports the write ceiling.
func (p *Pool) MaxConcurrent() int { return p.limit }

// Write updates the stored metrics of one entity. Key names the entity in
// logs, e.g. "campaign:120".
type Write struct {
	Key   string
	Apply func(ctx context.Context) error
}

// Outcome summarises one Apply call.
type Outcome struct {
	Applied int
	Failed  int
	Err     error // first failure seen
}

// Apply runs every write, at most MaxConcurrent at once. A failed write is
// logged and counted but does not cancel its siblings. Writes that have not
// started when ctx ends are counted as failed with ctx.Err().
func (p *Pool) Apply(ctx context.Context, writes []Write) Outcome {
	var (
		mu  sync.Mutex
		out Outcome
	)
	record := func(key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			out.Applied++
			return
		}
		out.Failed++
		if out.Err == nil {
			out.Err = err
		}
		p.logger.Error("Metric write failed", zap.String("key", key), zap.Error(err))
	}

	var g errgroup.Group
	g.SetLimit(p.limit)
	for _, w := range writes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(w.Key, err)
				return nil
			}
			record(w.Key, w.Apply(ctx))
			return nil
		})
	}
	_ = g.Wait()
	return out
}
