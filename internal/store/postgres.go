package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/cardlens/pkg/models"
)

// maxVersionRetries bounds how often CreateAnalysis retries after losing a
// version race to a concurrent writer on the same card.
const maxVersionRetries = 5

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKey(row scanner) (*models.APIKey, error) {
	var k models.APIKey
	if err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
		&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Cards ---

func (s *PostgresStore) GetCard(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	var c models.Card
	err := s.pool.QueryRow(ctx,
		`SELECT id, deck_id, front, back, created_at FROM cards WHERE id = $1`, id,
	).Scan(&c.ID, &c.DeckID, &c.Front, &c.Back, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) DeckExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM decks WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check deck: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListDeckCardIDs(ctx context.Context, deckID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM cards WHERE deck_id = $1 ORDER BY created_at, id`, deckID)
	if err != nil {
		return nil, fmt.Errorf("list deck cards: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan deck cards: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) CountDeckCards(ctx context.Context, deckID uuid.UUID) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cards WHERE deck_id = $1`, deckID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deck cards: %w", err)
	}
	return n, nil
}

// ListCardsForReanalysis returns cards whose current analysis matches filter,
// ordered by card id. Cards never analysed are not candidates.
func (s *PostgresStore) ListCardsForReanalysis(ctx context.Context, filter ReanalysisFilter) ([]uuid.UUID, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.Domain != "" {
		conditions = append(conditions, fmt.Sprintf("latest.domain = $%d", argIdx))
		args = append(args, filter.Domain)
		argIdx++
	}
	if !filter.Before.IsZero() {
		conditions = append(conditions, fmt.Sprintf("latest.created_at < $%d", argIdx))
		args = append(args, filter.Before)
		argIdx++
	}
	if filter.MinVersion > 0 {
		conditions = append(conditions, fmt.Sprintf("latest.version >= $%d", argIdx))
		args = append(args, filter.MinVersion)
		argIdx++
	}

	query := `WITH latest AS (
		SELECT DISTINCT ON (card_id) card_id, version, domain, created_at
		FROM card_analyses
		ORDER BY card_id, version DESC
	)
	SELECT latest.card_id FROM latest JOIN cards c ON c.id = latest.card_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY latest.card_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cards for reanalysis: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan reanalysis cards: %w", err)
	}
	return ids, nil
}

// --- Analyses ---

const analysisColumns = `id, card_id, job_id, version, domain, domain_confidence, secondary_domains,
	complexity_level, complexity_score, concepts, front_word_count, back_word_count,
	card_type, language, method, status, factors, created_at`

func scanAnalysis(row scanner) (*models.AnalysisRecord, error) {
	var r models.AnalysisRecord
	if err := row.Scan(&r.ID, &r.CardID, &r.JobID, &r.Version, &r.Domain, &r.DomainConfidence,
		&r.SecondaryDomains, &r.ComplexityLevel, &r.ComplexityScore, &r.Concepts,
		&r.FrontWordCount, &r.BackWordCount, &r.CardType, &r.Language, &r.Method,
		&r.Status, &r.Factors, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateAnalysis appends a new version for rec.CardID. The version is
// computed inside the insert; a writer that loses the race on
// (card_id, version) retries with the next number. On return rec carries its
// assigned ID, Version and CreatedAt.
func (s *PostgresStore) CreateAnalysis(ctx context.Context, rec *models.AnalysisRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	factors := rec.Factors
	if len(factors) == 0 {
		factors = []byte("{}")
	}

	var err error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO card_analyses (id, card_id, job_id, version, domain, domain_confidence,
			   secondary_domains, complexity_level, complexity_score, concepts,
			   front_word_count, back_word_count, card_type, language, method, status, factors)
			 SELECT $1::uuid, $2::uuid, $3::uuid, COALESCE(MAX(version), 0) + 1, $4::text, $5::float8,
			   $6::text[], $7::text, $8::float8, $9::text[],
			   $10::int, $11::int, $12::text, $13::text, $14::text, $15::text, $16::jsonb
			 FROM card_analyses WHERE card_id = $2::uuid
			 RETURNING version, created_at`,
			rec.ID, rec.CardID, rec.JobID, rec.Domain, rec.DomainConfidence,
			nonNil(rec.SecondaryDomains), rec.ComplexityLevel, rec.ComplexityScore, nonNil(rec.Concepts),
			rec.FrontWordCount, rec.BackWordCount, rec.CardType, rec.Language, rec.Method,
			rec.Status, string(factors),
		).Scan(&rec.Version, &rec.CreatedAt)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err, "card_analyses_card_id_version_key") {
			return fmt.Errorf("create analysis: %w", err)
		}
	}
	return fmt.Errorf("create analysis: version conflict after %d attempts: %w", maxVersionRetries, err)
}

func (s *PostgresStore) GetLatestAnalysis(ctx context.Context, cardID uuid.UUID) (*models.AnalysisRecord, error) {
	r, err := scanAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM card_analyses WHERE card_id = $1 ORDER BY version DESC LIMIT 1`, cardID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest analysis: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListAnalysisHistory(ctx context.Context, cardID uuid.UUID, page Page) ([]*models.AnalysisRecord, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM card_analyses WHERE card_id = $1`, cardID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count analysis history: %w", err)
	}

	records := []*models.AnalysisRecord{}
	if total == 0 || page.Offset >= total {
		return records, total, nil
	}

	// LIMIT NULL means no limit.
	var limit *int
	if page.Limit > 0 {
		limit = &page.Limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM card_analyses WHERE card_id = $1
		 ORDER BY version ASC LIMIT $2 OFFSET $3`, cardID, limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list analysis history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan analysis: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list analysis history: %w", err)
	}
	return records, total, nil
}

// --- Jobs ---

const jobColumns = `id, kind, card_id, deck_id, total_cards, priority, status, attempt_count,
	max_attempts, worker_id, claimed_at, processed_count, failed_count, last_error,
	requested_by, completed_at, created_at, updated_at`

func scanJob(row scanner) (*models.Job, error) {
	var j models.Job
	if err := row.Scan(&j.ID, &j.Kind, &j.CardID, &j.DeckID, &j.TotalCards, &j.Priority,
		&j.Status, &j.AttemptCount, &j.MaxAttempts, &j.WorkerID, &j.ClaimedAt,
		&j.ProcessedCount, &j.FailedCount, &j.LastError, &j.RequestedBy,
		&j.CompletedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	defer rows.Close()
	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// prepareJob fills defaults for a job about to be enqueued.
func prepareJob(job *models.Job) {
	now := time.Now().UTC()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = models.DefaultMaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
}

const insertJobSQL = `INSERT INTO analysis_jobs (id, kind, card_id, deck_id, total_cards, priority, status,
	  attempt_count, max_attempts, requested_by, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func insertJobArgs(job *models.Job) []any {
	return []any{job.ID, job.Kind, job.CardID, job.DeckID, job.TotalCards, job.Priority,
		job.Status, job.AttemptCount, job.MaxAttempts, job.RequestedBy, job.CreatedAt, job.UpdatedAt}
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	prepareJob(job)
	if _, err := s.pool.Exec(ctx, insertJobSQL, insertJobArgs(job)...); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// CreateJobs enqueues jobs atomically: either all rows are inserted or none.
func (s *PostgresStore) CreateJobs(ctx context.Context, jobs []*models.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create jobs: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, job := range jobs {
		prepareJob(job)
		batch.Queue(insertJobSQL, insertJobArgs(job)...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create jobs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create jobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetBacklog(ctx context.Context) (*models.Backlog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, kind, COUNT(*) FROM analysis_jobs GROUP BY status, kind ORDER BY status, kind`)
	if err != nil {
		return nil, fmt.Errorf("get backlog: %w", err)
	}
	defer rows.Close()

	b := &models.Backlog{Entries: []models.BacklogEntry{}, ByStatus: map[string]int{}}
	for rows.Next() {
		var e models.BacklogEntry
		if err := rows.Scan(&e.Status, &e.Kind, &e.Count); err != nil {
			return nil, fmt.Errorf("scan backlog: %w", err)
		}
		b.Entries = append(b.Entries, e)
		b.ByStatus[e.Status] += e.Count
		b.Total += e.Count
	}
	return b, rows.Err()
}

// --- Queue ---

// ClaimJobs atomically moves up to batchSize pending jobs to processing for
// workerID. Rows locked by a concurrent claimer are skipped, never waited on,
// so concurrent callers always receive disjoint sets. Jobs are returned
// highest priority first, oldest first within a priority.
func (s *PostgresStore) ClaimJobs(ctx context.Context, workerID string, batchSize int) ([]*models.Job, error) {
	if batchSize <= 0 {
		return []*models.Job{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`WITH candidates AS (
		   SELECT id FROM analysis_jobs
		   WHERE status = 'pending'
		   ORDER BY priority DESC, created_at ASC
		   LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 UPDATE analysis_jobs j
		 SET status = 'processing', worker_id = $1, claimed_at = NOW(), updated_at = NOW()
		 FROM candidates c WHERE j.id = c.id
		 RETURNING `+prefixColumns("j", jobColumns), workerID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	// RETURNING does not preserve the CTE order.
	sort.SliceStable(jobs, func(a, b int) bool {
		if jobs[a].Priority != jobs[b].Priority {
			return jobs[a].Priority > jobs[b].Priority
		}
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs, nil
}

// CompleteJob resolves a job claimed by params.WorkerID. A failure consumes
// one attempt; the job fails for good when the error is not retryable or the
// attempt budget is spent, otherwise it is immediately claimable again.
func (s *PostgresStore) CompleteJob(ctx context.Context, params CompleteParams) (*models.Job, error) {
	var row pgx.Row
	if params.Success {
		row = s.pool.QueryRow(ctx,
			`UPDATE analysis_jobs
			 SET status = 'completed', processed_count = $3, failed_count = $4,
			     worker_id = NULL, claimed_at = NULL, completed_at = NOW(), updated_at = NOW()
			 WHERE id = $1 AND worker_id = $2 AND status = 'processing'
			 RETURNING `+jobColumns,
			params.JobID, params.WorkerID, params.Processed, params.Failed)
	} else {
		row = s.pool.QueryRow(ctx,
			`UPDATE analysis_jobs
			 SET attempt_count = attempt_count + 1,
			     status = CASE WHEN NOT $3::boolean OR attempt_count + 1 >= max_attempts
			                   THEN 'failed' ELSE 'pending' END,
			     completed_at = CASE WHEN NOT $3::boolean OR attempt_count + 1 >= max_attempts
			                   THEN NOW() ELSE NULL END,
			     last_error = $4, processed_count = $5, failed_count = $6,
			     worker_id = NULL, claimed_at = NULL, updated_at = NOW()
			 WHERE id = $1 AND worker_id = $2 AND status = 'processing'
			 RETURNING `+jobColumns,
			params.JobID, params.WorkerID, params.Retryable, params.Error, params.Processed, params.Failed)
	}

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missingClaim(ctx, params.JobID)
	}
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	return job, nil
}

// UpdateBatchProgress records batch sub-counters while the job is still owned
// by workerID.
func (s *PostgresStore) UpdateBatchProgress(ctx context.Context, jobID uuid.UUID, workerID string, processed, failed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET processed_count = $3, failed_count = $4, updated_at = NOW()
		 WHERE id = $1 AND worker_id = $2 AND status = 'processing'`,
		jobID, workerID, processed, failed)
	if err != nil {
		return fmt.Errorf("update batch progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingClaim(ctx, jobID)
	}
	return nil
}

// ReleaseStaleJobs returns processing jobs claimed longer than maxAge ago to
// pending. The attempt count is left untouched.
func (s *PostgresStore) ReleaseStaleJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs
		 SET status = 'pending', worker_id = NULL, claimed_at = NULL, updated_at = NOW()
		 WHERE status = 'processing' AND claimed_at < NOW() - $1::float8 * INTERVAL '1 second'`,
		maxAge.Seconds())
	if err != nil {
		return 0, fmt.Errorf("release stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ReleaseOwnedJobs returns every job processing under workerID to pending.
func (s *PostgresStore) ReleaseOwnedJobs(ctx context.Context, workerID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs
		 SET status = 'pending', worker_id = NULL, claimed_at = NULL, updated_at = NOW()
		 WHERE status = 'processing' AND worker_id = $1`, workerID)
	if err != nil {
		return 0, fmt.Errorf("release owned jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// missingClaim explains why a guarded job update matched no row.
func (s *PostgresStore) missingClaim(ctx context.Context, jobID uuid.UUID) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM analysis_jobs WHERE id = $1)`, jobID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrClaimLost
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isUniqueViolation narrows isDuplicateKeyError to one named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}
