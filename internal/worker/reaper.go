package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/cardlens/internal/store"
	"github.com/robfig/cron/v3"
)

// Reaper periodically returns jobs whose claim has gone stale to pending so
// that work held by crashed workers is picked up again. It runs regardless of
// whether the owning worker holds any jobs itself.
type Reaper struct {
	store      store.Store
	interval   time.Duration
	staleAfter time.Duration
	cron       *cron.Cron
	mu         sync.Mutex
}

// NewReaper creates a Reaper that sweeps every interval and releases claims
// older than staleAfter.
func NewReaper(st store.Store, interval, staleAfter time.Duration) *Reaper {
	return &Reaper{
		store:      st,
		interval:   interval,
		staleAfter: staleAfter,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start runs one sweep immediately and schedules the rest.
func (r *Reaper) Start() error {
	schedule := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(schedule, r.scheduledSweep); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}

	r.scheduledSweep()
	r.cron.Start()
	slog.Info("reaper started", "interval", r.interval.String(), "stale_after", r.staleAfter.String())
	return nil
}

// scheduledSweep bounds a sweep by the interval so a hung database cannot
// hold up Stop, and with it the worker's shutdown, indefinitely.
func (r *Reaper) scheduledSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()
	_, _ = r.Sweep(ctx)
}

// Stop cancels future sweeps and waits for a running one to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
	slog.Info("reaper stopped")
}

// Sweep releases stale claims once and returns how many jobs were released.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.store.ReleaseStaleJobs(ctx, r.staleAfter)
	if err != nil {
		slog.Error("stale job sweep failed", "error", err)
		return 0, err
	}
	if n > 0 {
		slog.Warn("released stale jobs", "count", n, "stale_after", r.staleAfter.String())
	} else {
		slog.Debug("stale job sweep found nothing")
	}
	return n, nil
}
