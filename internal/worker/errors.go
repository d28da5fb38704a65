package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/cardlens/internal/store"
)

var (
	ErrUnknownJobKind = errors.New("unknown job kind")
	ErrInvalidJob     = errors.New("invalid job")
)

// ErrorClass decides whether a failed job is worth another attempt.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassTransient
	ClassValidation
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Retryable reports whether a job failing with this class may run again.
// Unknown errors are retried; the attempt budget bounds them.
func (c ErrorClass) Retryable() bool {
	return c != ClassValidation
}

// JobError ties a failure to the job that produced it.
type JobError struct {
	JobID uuid.UUID
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Postgres SQLSTATEs that clear up on their own: admin shutdown, crash
// shutdown, cannot connect now, serialization failure, deadlock.
var transientPgCodes = map[string]bool{
	"57P01": true,
	"57P02": true,
	"57P03": true,
	"40001": true,
	"40P01": true,
}

// Classify maps an error from job processing to its class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	if errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, ErrUnknownJobKind) ||
		errors.Is(err, ErrInvalidJob) {
		return ClassValidation
	}

	if isTransient(err) {
		return ClassTransient
	}
	return ClassUnknown
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 {
		class := pgErr.Code[:2]
		return class == "08" || class == "53" || transientPgCodes[pgErr.Code]
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}
