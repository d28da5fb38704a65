// Package handler implements the trigger and read endpoints of the analysis
// API. Handlers only enqueue work and read results; analysis itself runs in
// the worker.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/cardlens/internal/api/middleware"
	"github.com/kiranshivaraju/cardlens/internal/api/response"
	"github.com/kiranshivaraju/cardlens/internal/cache"
	"github.com/kiranshivaraju/cardlens/internal/store"
	"github.com/kiranshivaraju/cardlens/pkg/models"
)

// Options configures enqueue defaults and cache lifetimes.
type Options struct {
	MaxAttempts int
	// CacheTTL bounds how long a latest analysis or a terminal job is served
	// from the cache.
	CacheTTL time.Duration
}

// Analysis serves the /analysis routes.
type Analysis struct {
	store    store.Store
	cache    cache.Cache
	validate *validator.Validate
	opts     Options
}

// NewAnalysis creates the analysis handlers.
func NewAnalysis(s store.Store, c cache.Cache, opts Options) *Analysis {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = models.DefaultMaxAttempts
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Analysis{store: s, cache: c, validate: newValidator(), opts: opts}
}

// EnqueueCard handles POST /api/v1/analysis/cards/{cardID}.
func (h *Analysis) EnqueueCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := uuidParam(w, r, "cardID", response.CodeInvalidCardID)
	if !ok {
		return
	}
	var req enqueueRequest
	if !decodeAndValidate(w, r, h.validate, &req, true) {
		return
	}

	if _, err := h.store.GetCard(r.Context(), cardID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeCardNotFound, "Card not found", nil)
			return
		}
		internalError(w, "get card", err)
		return
	}

	job := h.newJob(r, models.JobKindSingle, req.Priority)
	job.CardID = &cardID
	if err := h.store.CreateJob(r.Context(), job); err != nil {
		internalError(w, "enqueue single", err)
		return
	}

	slog.Info("analysis enqueued", "job_id", job.ID, "kind", job.Kind, "card_id", cardID)
	response.Accepted(w, job)
}

// EnqueueDeck handles POST /api/v1/analysis/decks/{deckID}.
func (h *Analysis) EnqueueDeck(w http.ResponseWriter, r *http.Request) {
	deckID, ok := uuidParam(w, r, "deckID", response.CodeInvalidDeckID)
	if !ok {
		return
	}
	var req enqueueRequest
	if !decodeAndValidate(w, r, h.validate, &req, true) {
		return
	}

	exists, err := h.store.DeckExists(r.Context(), deckID)
	if err != nil {
		internalError(w, "check deck", err)
		return
	}
	if !exists {
		response.Error(w, http.StatusNotFound, response.CodeDeckNotFound, "Deck not found", nil)
		return
	}

	total, err := h.store.CountDeckCards(r.Context(), deckID)
	if err != nil {
		internalError(w, "count deck cards", err)
		return
	}

	job := h.newJob(r, models.JobKindBatch, req.Priority)
	job.DeckID = &deckID
	job.TotalCards = total
	if err := h.store.CreateJob(r.Context(), job); err != nil {
		internalError(w, "enqueue batch", err)
		return
	}

	slog.Info("analysis enqueued", "job_id", job.ID, "kind", job.Kind, "deck_id", deckID, "total_cards", total)
	response.Accepted(w, job)
}

// Reanalyze handles POST /api/v1/analysis/reanalyze. One reanalysis job is
// enqueued per matching card, all in one transaction.
func (h *Analysis) Reanalyze(w http.ResponseWriter, r *http.Request) {
	var req reanalyzeRequest
	if !decodeAndValidate(w, r, h.validate, &req, true) {
		return
	}

	filter := store.ReanalysisFilter{Domain: req.Domain, Limit: req.Limit}
	if req.Before != nil {
		filter.Before = *req.Before
	}
	if req.MinVersion != nil {
		filter.MinVersion = *req.MinVersion
	}

	cardIDs, err := h.store.ListCardsForReanalysis(r.Context(), filter)
	if err != nil {
		internalError(w, "list cards for reanalysis", err)
		return
	}

	jobs := make([]*models.Job, 0, len(cardIDs))
	for _, id := range cardIDs {
		job := h.newJob(r, models.JobKindReanalysis, req.Priority)
		job.CardID = &id
		jobs = append(jobs, job)
	}
	if err := h.store.CreateJobs(r.Context(), jobs); err != nil {
		internalError(w, "enqueue reanalysis", err)
		return
	}

	ids := make([]uuid.UUID, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	slog.Info("reanalysis enqueued", "count", len(jobs), "domain", req.Domain)
	response.Accepted(w, map[string]any{
		"enqueued": len(jobs),
		"job_ids":  ids,
	})
}

// GetLatest handles GET /api/v1/analysis/cards/{cardID}. The current record
// is read through the cache. Both this read path and the worker write
// versioned entries, so an older record never replaces a newer one.
func (h *Analysis) GetLatest(w http.ResponseWriter, r *http.Request) {
	cardID, ok := uuidParam(w, r, "cardID", response.CodeInvalidCardID)
	if !ok {
		return
	}

	key := cache.AnalysisLatestKey(cardID)
	if raw, hit, err := h.cache.GetVersioned(r.Context(), key); err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
	} else if hit {
		response.JSON(w, json.RawMessage(raw))
		return
	}

	rec, err := h.store.GetLatestAnalysis(r.Context(), cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeAnalysisNotFound, "Card has not been analysed", nil)
			return
		}
		internalError(w, "get latest analysis", err)
		return
	}

	if data, err := json.Marshal(rec); err != nil {
		slog.Warn("cache encode failed", "key", key, "error", err)
	} else if _, err := h.cache.SetVersioned(r.Context(), key, rec.Version, data, h.opts.CacheTTL); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
	response.JSON(w, rec)
}

// History handles GET /api/v1/analysis/cards/{cardID}/history. Versions are
// listed oldest first, paged by the page and limit query parameters.
func (h *Analysis) History(w http.ResponseWriter, r *http.Request) {
	cardID, ok := uuidParam(w, r, "cardID", response.CodeInvalidCardID)
	if !ok {
		return
	}
	page, ok := parsePage(w, r, h.validate)
	if !ok {
		return
	}

	records, total, err := h.store.ListAnalysisHistory(r.Context(), cardID, page.storePage())
	if err != nil {
		internalError(w, "list analysis history", err)
		return
	}
	if records == nil {
		records = []*models.AnalysisRecord{}
	}
	response.Collection(w, records, response.NewPaginationMeta(page.Page, page.Limit, total))
}

// GetJob handles GET /api/v1/analysis/jobs/{jobID}. Only terminal jobs are
// cached since they no longer change.
func (h *Analysis) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := uuidParam(w, r, "jobID", response.CodeInvalidJobID)
	if !ok {
		return
	}

	key := cache.JobKey(jobID)
	if raw, hit, err := h.cache.Get(r.Context(), key); err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
	} else if hit {
		response.JSON(w, json.RawMessage(raw))
		return
	}

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeJobNotFound, "Job not found", nil)
			return
		}
		internalError(w, "get job", err)
		return
	}

	if job.IsTerminal() {
		h.cacheJSON(r, key, job)
	}
	response.JSON(w, job)
}

// Backlog handles GET /api/v1/analysis/backlog.
func (h *Analysis) Backlog(w http.ResponseWriter, r *http.Request) {
	backlog, err := h.store.GetBacklog(r.Context())
	if err != nil {
		internalError(w, "get backlog", err)
		return
	}
	response.JSON(w, backlog)
}

func (h *Analysis) newJob(r *http.Request, kind string, priority int) *models.Job {
	requester, _ := mw.GetRequester(r)
	return &models.Job{
		ID:          uuid.New(),
		Kind:        kind,
		Priority:    priority,
		Status:      models.JobStatusPending,
		MaxAttempts: h.opts.MaxAttempts,
		RequestedBy: requester,
	}
}

func (h *Analysis) cacheJSON(r *http.Request, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := h.cache.Set(r.Context(), key, data, h.opts.CacheTTL); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

func internalError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", "error", err)
	response.Error(w, http.StatusInternalServerError, response.CodeInternal, "An unexpected error occurred", nil)
}
