// Package models contains shared data models used across the CardLens codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobKindSingle     = "single"
	JobKindBatch      = "batch"
	JobKindReanalysis = "reanalysis"
)

// DefaultMaxAttempts is used when a job is enqueued without an explicit attempt budget.
const DefaultMaxAttempts = 3

// Job is a row of the shared analysis work table. Workers claim pending jobs,
// process them, and resolve them to completed, failed, or back to pending.
// WorkerID and ClaimedAt are set only while the job is processing.
type Job struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	Kind           string     `db:"kind"            json:"kind"`
	CardID         *uuid.UUID `db:"card_id"         json:"card_id,omitempty"`
	DeckID         *uuid.UUID `db:"deck_id"         json:"deck_id,omitempty"`
	TotalCards     int        `db:"total_cards"     json:"total_cards"`
	Priority       int        `db:"priority"        json:"priority"`
	Status         string     `db:"status"          json:"status"`
	AttemptCount   int        `db:"attempt_count"   json:"attempt_count"`
	MaxAttempts    int        `db:"max_attempts"    json:"max_attempts"`
	WorkerID       *string    `db:"worker_id"       json:"worker_id,omitempty"`
	ClaimedAt      *time.Time `db:"claimed_at"      json:"claimed_at,omitempty"`
	ProcessedCount int        `db:"processed_count" json:"processed_count"`
	FailedCount    int        `db:"failed_count"    json:"failed_count"`
	LastError      *string    `db:"last_error"      json:"last_error,omitempty"`
	RequestedBy    string     `db:"requested_by"    json:"requested_by"`
	CompletedAt    *time.Time `db:"completed_at"    json:"completed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// IsTerminal reports whether the job has reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// BacklogEntry is the number of jobs sharing a status and kind.
type BacklogEntry struct {
	Status string `json:"status"`
	Kind   string `json:"kind"`
	Count  int    `json:"count"`
}

// Backlog summarises the work table for operators.
type Backlog struct {
	Entries  []BacklogEntry `json:"entries"`
	ByStatus map[string]int `json:"by_status"`
	Total    int            `json:"total"`
}
