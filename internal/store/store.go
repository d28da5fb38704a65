package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardlens/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrClaimLost is returned when a worker resolves a job it no longer owns,
// typically because the reaper released it and another worker claimed it.
var ErrClaimLost = errors.New("job claim lost")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	GetCard(ctx context.Context, id uuid.UUID) (*models.Card, error)
	DeckExists(ctx context.Context, id uuid.UUID) (bool, error)
	ListDeckCardIDs(ctx context.Context, deckID uuid.UUID) ([]uuid.UUID, error)
	CountDeckCards(ctx context.Context, deckID uuid.UUID) (int, error)
	ListCardsForReanalysis(ctx context.Context, filter ReanalysisFilter) ([]uuid.UUID, error)

	CreateAnalysis(ctx context.Context, rec *models.AnalysisRecord) error
	GetLatestAnalysis(ctx context.Context, cardID uuid.UUID) (*models.AnalysisRecord, error)
	// ListAnalysisHistory returns one page of a card's versions, oldest
	// first, and the total number of versions.
	ListAnalysisHistory(ctx context.Context, cardID uuid.UUID, page Page) ([]*models.AnalysisRecord, int, error)

	CreateJob(ctx context.Context, job *models.Job) error
	CreateJobs(ctx context.Context, jobs []*models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetBacklog(ctx context.Context) (*models.Backlog, error)

	ClaimJobs(ctx context.Context, workerID string, batchSize int) ([]*models.Job, error)
	CompleteJob(ctx context.Context, params CompleteParams) (*models.Job, error)
	UpdateBatchProgress(ctx context.Context, jobID uuid.UUID, workerID string, processed, failed int) error
	ReleaseStaleJobs(ctx context.Context, maxAge time.Duration) (int, error)
	ReleaseOwnedJobs(ctx context.Context, workerID string) (int, error)
}

// CompleteParams resolves a claimed job. On success the job completes with the
// given counters. On failure the attempt is counted and the job either returns
// to pending or, when Retryable is false or attempts are exhausted, fails.
type CompleteParams struct {
	JobID     uuid.UUID
	WorkerID  string
	Success   bool
	Retryable bool
	Error     string
	Processed int
	Failed    int
}

// Page selects part of an ordered listing. A zero Limit means no limit.
type Page struct {
	Offset int
	Limit  int
}

// ReanalysisFilter selects cards whose current analysis matches every set field.
// An empty filter selects every analysed card.
type ReanalysisFilter struct {
	Domain     string
	Before     time.Time
	MinVersion int
	Limit      int
}
