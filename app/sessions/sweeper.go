package sessions

import (
	"context"
	"sync"
	"time"

	"example/healing-api/app/logger"
	"example/healing-api/app/metrics"
	"example/healing-api/app/store"
)

const DefaultSweepInterval = 15 * time.Minute

// Sweeper periodically closes stale sessions without charging them.
type Sweeper struct {
	store    store.Sessions
	ttl      time.Duration
	interval time.Duration
	log      logger.Logger
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewSweeper(st store.Sessions, ttl, interval time.Duration, log logger.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    st,
		ttl:      ttl,
		interval: interval,
		log:      log,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Sweep runs one pass and returns the number of sessions closed.
func (w *Sweeper) Sweep(ctx context.Context) (int64, error) {
	now := w.now().UTC()
	n, err := w.store.CloseStaleSessions(ctx, now.Add(-w.ttl), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.SessionsExpired.Add(float64(n))
		w.log.Info("closed stale sessions", map[string]interface{}{"count": n})
	}
	return n, nil
}

// Start launches the sweep loop; it exits on Stop or when ctx is done.
func (w *Sweeper) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				if _, err := w.Sweep(sweepCtx); err != nil {
					w.log.Error("session sweep failed", map[string]interface{}{"error": err.Error()})
				}
				cancel()
			}
		}
	}()
}

// Stop signals the loop and waits for it to exit.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}
