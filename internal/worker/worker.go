// Package worker drains the analysis job queue. A Worker claims batches of
// pending jobs, classifies their cards with the analysis engine and resolves
// each job through the store. Several worker processes may share one queue;
// they coordinate only through the store's claim protocol.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardlens/internal/ai"
	"github.com/kiranshivaraju/cardlens/internal/analysis"
	"github.com/kiranshivaraju/cardlens/internal/cache"
	"github.com/kiranshivaraju/cardlens/internal/store"
	"github.com/kiranshivaraju/cardlens/pkg/models"
)

// errStopped marks a batch interrupted by shutdown. The job is left
// processing so that ReleaseOwnedJobs returns it to the queue.
var errStopped = errors.New("worker stopping")

// Config controls polling, claiming and shutdown. CacheTTL is how long a
// published latest analysis stays cached.
type Config struct {
	ID              string
	PollInterval    time.Duration
	BatchSize       int
	ReapInterval    time.Duration
	StaleAfter      time.Duration
	ShutdownTimeout time.Duration
	CacheTTL        time.Duration
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = DefaultID()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Minute
	}
}

// DefaultID builds a worker identity unique across hosts and restarts.
func DefaultID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// Worker processes claimed jobs one at a time.
type Worker struct {
	store    store.Store
	engine   *analysis.Engine
	fallback ai.Fallback
	cache    cache.Cache
	reaper   *Reaper
	cfg      Config

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Worker. fallback may be nil; a nil ca skips cache publishing.
func New(st store.Store, engine *analysis.Engine, fallback ai.Fallback, ca cache.Cache, cfg Config) *Worker {
	cfg.applyDefaults()
	if fallback == nil {
		fallback = ai.Disabled{}
	}
	return &Worker{
		store:    st,
		engine:   engine,
		fallback: fallback,
		cache:    ca,
		reaper:   NewReaper(st, cfg.ReapInterval, cfg.StaleAfter),
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// ID returns the identity written into claimed jobs.
func (w *Worker) ID() string { return w.cfg.ID }

// Stop asks Run to return after the job in progress. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Worker) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// Run polls the queue until ctx is cancelled or Stop is called. The first
// cycle starts immediately. On the way out it stops the reaper and releases
// every job still claimed by this worker.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.reaper.Start(); err != nil {
		return err
	}

	slog.Info("worker started",
		"worker_id", w.cfg.ID,
		"poll_interval", w.cfg.PollInterval.String(),
		"batch_size", w.cfg.BatchSize,
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	for !w.stopping(ctx) {
		w.RunOnce(ctx)

		select {
		case <-ctx.Done():
		case <-w.stopCh:
		case <-ticker.C:
		}
	}
	ticker.Stop()

	w.reaper.Stop()
	return w.shutdown()
}

// shutdown hands back claimed jobs. It runs on a fresh context because the
// run context is usually already cancelled.
func (w *Worker) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
	defer cancel()

	n, err := w.store.ReleaseOwnedJobs(ctx, w.cfg.ID)
	if err != nil {
		slog.Error("failed to release owned jobs", "worker_id", w.cfg.ID, "error", err)
		return fmt.Errorf("release owned jobs: %w", err)
	}
	slog.Info("worker stopped", "worker_id", w.cfg.ID, "released", n)
	return nil
}

// RunOnce claims one batch and processes it. It returns the number of jobs
// claimed.
func (w *Worker) RunOnce(ctx context.Context) int {
	jobs, err := w.store.ClaimJobs(ctx, w.cfg.ID, w.cfg.BatchSize)
	if err != nil {
		if !w.stopping(ctx) {
			slog.Error("claim failed", "worker_id", w.cfg.ID, "error", err)
		}
		return 0
	}
	if len(jobs) == 0 {
		slog.Debug("no pending jobs", "worker_id", w.cfg.ID)
		return 0
	}
	slog.Debug("claimed jobs", "worker_id", w.cfg.ID, "count", len(jobs))

	for _, job := range jobs {
		if w.stopping(ctx) {
			break
		}
		w.processJob(ctx, job)
	}
	return len(jobs)
}

type outcome struct {
	processed int
	failed    int
}

// processJob runs one job to a resolution. Work and resolution use a context
// detached from ctx so shutdown never interrupts a card mid-analysis.
func (w *Worker) processJob(ctx context.Context, job *models.Job) {
	started := time.Now()
	log := slog.With("job_id", job.ID, "worker_id", w.cfg.ID, "kind", job.Kind, "attempt", job.AttemptCount+1)

	out, err := w.safeHandle(ctx, job)
	if errors.Is(err, errStopped) {
		log.Info("job interrupted by shutdown", "processed", out.processed, "failed", out.failed)
		return
	}
	if errors.Is(err, store.ErrClaimLost) {
		log.Warn("job claim lost during processing")
		return
	}

	params := store.CompleteParams{
		JobID:     job.ID,
		WorkerID:  w.cfg.ID,
		Success:   err == nil,
		Processed: out.processed,
		Failed:    out.failed,
	}
	if err != nil {
		params.Retryable = Classify(err).Retryable()
		params.Error = err.Error()
	}

	done, cerr := w.store.CompleteJob(context.WithoutCancel(ctx), params)
	switch {
	case errors.Is(cerr, store.ErrClaimLost):
		log.Warn("job claim lost before completion")
		return
	case cerr != nil:
		log.Error("failed to resolve job", "error", cerr)
		return
	}

	if err == nil {
		log.Info("job completed",
			"processed", out.processed,
			"failed", out.failed,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return
	}
	log.Warn("job failed",
		"error", err,
		"class", Classify(err).String(),
		"status", done.Status,
		"attempts", done.AttemptCount,
		"max_attempts", done.MaxAttempts,
	)
}

// safeHandle turns a panic inside a job into an error.
func (w *Worker) safeHandle(ctx context.Context, job *models.Job) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job", "job_id", job.ID, "error", r)
			err = &JobError{JobID: job.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return w.handle(ctx, job)
}

func (w *Worker) handle(ctx context.Context, job *models.Job) (outcome, error) {
	switch job.Kind {
	case models.JobKindSingle, models.JobKindReanalysis:
		if job.CardID == nil {
			return outcome{}, &JobError{JobID: job.ID, Err: fmt.Errorf("%w: %s job without card", ErrInvalidJob, job.Kind)}
		}
		if err := w.analyzeCard(context.WithoutCancel(ctx), job.ID, *job.CardID); err != nil {
			return outcome{failed: 1}, &JobError{JobID: job.ID, Err: err}
		}
		return outcome{processed: 1}, nil
	case models.JobKindBatch:
		return w.handleBatch(ctx, job)
	default:
		return outcome{}, &JobError{JobID: job.ID, Err: fmt.Errorf("%w: %q", ErrUnknownJobKind, job.Kind)}
	}
}

// handleBatch analyses every card of a deck, persisting progress after each
// card. A card that fails is counted and skipped. The batch itself fails only
// when every card failed transiently, so that it is retried as a whole.
func (w *Worker) handleBatch(ctx context.Context, job *models.Job) (outcome, error) {
	if job.DeckID == nil {
		return outcome{}, &JobError{JobID: job.ID, Err: fmt.Errorf("%w: batch job without deck", ErrInvalidJob)}
	}
	work := context.WithoutCancel(ctx)

	exists, err := w.store.DeckExists(work, *job.DeckID)
	if err != nil {
		return outcome{}, &JobError{JobID: job.ID, Err: err}
	}
	if !exists {
		return outcome{}, &JobError{JobID: job.ID, Err: fmt.Errorf("deck %s: %w", *job.DeckID, store.ErrNotFound)}
	}

	cardIDs, err := w.store.ListDeckCardIDs(work, *job.DeckID)
	if err != nil {
		return outcome{}, &JobError{JobID: job.ID, Err: err}
	}

	var out outcome
	var lastErr error
	allTransient := true
	for _, cardID := range cardIDs {
		if w.stopping(ctx) {
			return out, errStopped
		}

		if err := w.analyzeCard(work, job.ID, cardID); err != nil {
			out.failed++
			lastErr = err
			if Classify(err) != ClassTransient {
				allTransient = false
			}
			slog.Warn("card analysis failed", "job_id", job.ID, "card_id", cardID, "error", err)
		} else {
			out.processed++
		}

		if err := w.store.UpdateBatchProgress(work, job.ID, w.cfg.ID, out.processed, out.failed); err != nil {
			if errors.Is(err, store.ErrClaimLost) {
				return out, err
			}
			slog.Warn("failed to record batch progress", "job_id", job.ID, "error", err)
		}
	}

	if len(cardIDs) > 0 && out.failed == len(cardIDs) && allTransient {
		return out, &JobError{JobID: job.ID, Err: fmt.Errorf("all %d cards failed: %w", out.failed, lastErr)}
	}
	return out, nil
}

// analyzeCard classifies one card and appends a new analysis version.
func (w *Worker) analyzeCard(ctx context.Context, jobID, cardID uuid.UUID) error {
	card, err := w.store.GetCard(ctx, cardID)
	if err != nil {
		return fmt.Errorf("card %s: %w", cardID, err)
	}

	res := w.engine.Analyze(card.Front, card.Back)
	refined := false
	if res.NeedsLLM {
		res, refined = w.refine(ctx, card, res)
	}

	rec, err := res.Record(*card)
	if err != nil {
		return fmt.Errorf("encode analysis factors: %w", err)
	}
	if refined {
		rec.Method = models.AnalysisMethodHybrid
		rec.Status = models.AnalysisStatusCompleted
	}
	rec.JobID = &jobID

	if err := w.store.CreateAnalysis(ctx, rec); err != nil {
		return err
	}

	w.publish(ctx, rec)

	slog.Debug("card analysed",
		"job_id", jobID,
		"card_id", cardID,
		"version", rec.Version,
		"domain", rec.Domain,
		"status", rec.Status,
	)
	return nil
}

// publish writes rec through to the latest-analysis cache. The entry is
// versioned, so a reader caching an older record concurrently loses. If the
// write fails the entry is dropped and readers fall back to postgres.
func (w *Worker) publish(ctx context.Context, rec *models.AnalysisRecord) {
	if w.cache == nil {
		return
	}
	key := cache.AnalysisLatestKey(rec.CardID)
	data, err := json.Marshal(rec)
	if err == nil {
		if _, err = w.cache.SetVersioned(ctx, key, rec.Version, data, w.cfg.CacheTTL); err == nil {
			return
		}
	}

	slog.Warn("failed to publish analysis to cache", "card_id", rec.CardID, "version", rec.Version, "error", err)
	if err := w.cache.Delete(ctx, key); err != nil {
		slog.Warn("failed to invalidate cached analysis", "card_id", rec.CardID, "error", err)
	}
}

// refine asks the LLM fallback to improve a low-confidence result. Any
// failure keeps the rule-based result, which is then stored as needs_llm.
func (w *Worker) refine(ctx context.Context, card *models.Card, res analysis.Result) (analysis.Result, bool) {
	refined, err := w.fallback.Refine(ctx, ai.FallbackRequest{Card: *card, RuleBased: res})
	if err != nil {
		if !errors.Is(err, ai.ErrFallbackUnavailable) {
			slog.Warn("llm fallback failed", "card_id", card.ID, "provider", w.fallback.Name(), "error", err)
		}
		return res, false
	}
	refined.NeedsLLM = false
	return refined, true
}
