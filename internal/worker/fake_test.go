package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardlens/internal/cache"
	"github.com/kiranshivaraju/cardlens/internal/store"
	"github.com/kiranshivaraju/cardlens/pkg/models"
)

// fakeStore is an in-memory store.Store with the queue semantics of the
// Postgres implementation.
type fakeStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*models.Job
	cards    map[uuid.UUID]*models.Card
	decks    map[uuid.UUID][]uuid.UUID
	analyses map[uuid.UUID][]*models.AnalysisRecord
	progress int
	released []string

	// getCardHook runs before GetCard without the lock held. A non-nil
	// error is returned to the caller.
	getCardHook func(id uuid.UUID) error
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:     map[uuid.UUID]*models.Job{},
		cards:    map[uuid.UUID]*models.Card{},
		decks:    map[uuid.UUID][]uuid.UUID{},
		analyses: map[uuid.UUID][]*models.AnalysisRecord{},
	}
}

func (f *fakeStore) addCard(deckID uuid.UUID, front, back string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.cards[id] = &models.Card{ID: id, DeckID: deckID, Front: front, Back: back, CreatedAt: time.Now()}
	f.decks[deckID] = append(f.decks[deckID], id)
	return id
}

func (f *fakeStore) addDeck() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.decks[id] = []uuid.UUID{}
	return id
}

func (f *fakeStore) job(id uuid.UUID) models.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.jobs[id]
}

func (f *fakeStore) history(cardID uuid.UUID) []*models.AnalysisRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.AnalysisRecord(nil), f.analyses[cardID]...)
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) GetAPIKeyByPrefix(context.Context, string) ([]*models.APIKey, error) {
	return nil, nil
}
func (f *fakeStore) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }
func (f *fakeStore) CreateAPIKey(context.Context, *models.APIKey) error    { return nil }
func (f *fakeStore) ListAPIKeys(context.Context) ([]*models.APIKey, error) { return nil, nil }
func (f *fakeStore) RevokeAPIKey(context.Context, uuid.UUID) error         { return nil }

func (f *fakeStore) GetCard(_ context.Context, id uuid.UUID) (*models.Card, error) {
	if f.getCardHook != nil {
		if err := f.getCardHook(id); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) DeckExists(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.decks[id]
	return ok, nil
}

func (f *fakeStore) ListDeckCardIDs(_ context.Context, deckID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID{}, f.decks[deckID]...), nil
}

func (f *fakeStore) CountDeckCards(_ context.Context, deckID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.decks[deckID]), nil
}

func (f *fakeStore) ListCardsForReanalysis(context.Context, store.ReanalysisFilter) ([]uuid.UUID, error) {
	return nil, nil
}

func (f *fakeStore) CreateAnalysis(_ context.Context, rec *models.AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = uuid.New()
	rec.Version = len(f.analyses[rec.CardID]) + 1
	rec.CreatedAt = time.Now()
	cp := *rec
	f.analyses[rec.CardID] = append(f.analyses[rec.CardID], &cp)
	return nil
}

func (f *fakeStore) GetLatestAnalysis(_ context.Context, cardID uuid.UUID) (*models.AnalysisRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.analyses[cardID]
	if len(h) == 0 {
		return nil, store.ErrNotFound
	}
	return h[len(h)-1], nil
}

func (f *fakeStore) ListAnalysisHistory(_ context.Context, cardID uuid.UUID, _ store.Page) ([]*models.AnalysisRecord, int, error) {
	h := f.history(cardID)
	return h, len(h), nil
}

func (f *fakeStore) CreateJob(_ context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = models.DefaultMaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeStore) CreateJobs(ctx context.Context, jobs []*models.Job) error {
	for _, j := range jobs {
		if err := f.CreateJob(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) GetBacklog(context.Context) (*models.Backlog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &models.Backlog{ByStatus: map[string]int{}}
	for _, j := range f.jobs {
		b.ByStatus[j.Status]++
		b.Total++
	}
	return b, nil
}

func (f *fakeStore) ClaimJobs(_ context.Context, workerID string, batchSize int) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pending []*models.Job
	for _, j := range f.jobs {
		if j.Status == models.JobStatusPending {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(a, b int) bool {
		if pending[a].Priority != pending[b].Priority {
			return pending[a].Priority > pending[b].Priority
		}
		return pending[a].CreatedAt.Before(pending[b].CreatedAt)
	})
	if len(pending) > batchSize {
		pending = pending[:batchSize]
	}

	now := time.Now()
	claimed := make([]*models.Job, 0, len(pending))
	for _, j := range pending {
		w := workerID
		j.Status = models.JobStatusProcessing
		j.WorkerID = &w
		j.ClaimedAt = &now
		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (f *fakeStore) owned(id uuid.UUID, workerID string) (*models.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if j.Status != models.JobStatusProcessing || j.WorkerID == nil || *j.WorkerID != workerID {
		return nil, store.ErrClaimLost
	}
	return j, nil
}

func (f *fakeStore) CompleteJob(_ context.Context, p store.CompleteParams) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, err := f.owned(p.JobID, p.WorkerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	j.WorkerID, j.ClaimedAt = nil, nil
	j.ProcessedCount, j.FailedCount = p.Processed, p.Failed
	if p.Success {
		j.Status = models.JobStatusCompleted
		j.CompletedAt = &now
	} else {
		msg := p.Error
		j.LastError = &msg
		if !p.Retryable || j.AttemptCount+1 >= j.MaxAttempts {
			j.Status = models.JobStatusFailed
			j.CompletedAt = &now
		} else {
			j.Status = models.JobStatusPending
		}
		j.AttemptCount++
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) UpdateBatchProgress(_ context.Context, jobID uuid.UUID, workerID string, processed, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, err := f.owned(jobID, workerID)
	if err != nil {
		return err
	}
	j.ProcessedCount, j.FailedCount = processed, failed
	f.progress++
	return nil
}

func (f *fakeStore) ReleaseStaleJobs(_ context.Context, maxAge time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for _, j := range f.jobs {
		if j.Status == models.JobStatusProcessing && j.ClaimedAt.Before(cutoff) {
			j.Status, j.WorkerID, j.ClaimedAt = models.JobStatusPending, nil, nil
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ReleaseOwnedJobs(_ context.Context, workerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, workerID)
	n := 0
	for _, j := range f.jobs {
		if j.Status == models.JobStatusProcessing && *j.WorkerID == workerID {
			j.Status, j.WorkerID, j.ClaimedAt = models.JobStatusPending, nil, nil
			n++
		}
	}
	return n, nil
}

// fakeCache keeps versioned entries the way redis does and records
// deletions. Only what the worker calls is implemented.
type fakeCache struct {
	cache.Cache

	mu      sync.Mutex
	entries map[string]versionedEntry
	deleted []string
	setErr  error
}

type versionedEntry struct {
	version int
	data    []byte
}

var _ cache.Cache = (*fakeCache)(nil)

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]versionedEntry{}} }

func (c *fakeCache) SetVersioned(_ context.Context, key string, version int, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return false, c.setErr
	}
	if cur, ok := c.entries[key]; ok && cur.version >= version {
		return false, nil
	}
	c.entries[key] = versionedEntry{version: version, data: value}
	return true, nil
}

func (c *fakeCache) GetVersioned(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e.data, ok, nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *fakeCache) entry(key string) (versionedEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *fakeCache) deletedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}
