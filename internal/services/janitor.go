package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StaleSessionDeleter removes session rows last updated before a cutoff.
type StaleSessionDeleter interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// Janitor periodically purges abandoned session state. Responses are never touched.
type Janitor struct {
	log      *zap.Logger
	sessions StaleSessionDeleter
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   sync.WaitGroup
}

func NewJanitor(log *zap.Logger, sessions StaleSessionDeleter, ttl, interval time.Duration) *Janitor {
	return &Janitor{
		log:      log,
		sessions: sessions,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs the janitor in a goroutine until Stop or ctx is cancelled. A
// non-positive ttl or interval disables it.
func (j *Janitor) Start(ctx context.Context) {
	if j.ttl <= 0 || j.interval <= 0 {
		j.log.Info("Session janitor disabled")
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)
	j.log.Info("Starting session janitor...", zap.Duration("ttl", j.ttl), zap.Duration("interval", j.interval))

	j.done.Add(1)
	go func() {
		defer j.done.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.RunOnce(ctx)
			}
		}
	}()
}

// Stop halts the goroutine and waits for an in-flight purge to finish.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.done.Wait()
}

// RunOnce deletes sessions idle for longer than the ttl.
func (j *Janitor) RunOnce(ctx context.Context) {
	cutoff := j.now().Add(-j.ttl)
	n, err := j.sessions.DeleteStale(ctx, cutoff)
	if err != nil {
		j.log.Error("Failed to purge stale sessions", zap.Error(err))
		return
	}
	if n > 0 {
		j.log.Info("Purged stale sessions", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
}
