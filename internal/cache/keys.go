package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnalysisLatestKey holds the serialized current analysis of a card.
func AnalysisLatestKey(cardID uuid.UUID) string {
	return fmt.Sprintf("analysis:latest:%s", cardID)
}

// JobKey holds a serialized job once it has reached a terminal status.
func JobKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

// RateLimitKey counts one API key's requests in one bucket for the window
// starting at windowStart.
func RateLimitKey(keyPrefix, bucket string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", keyPrefix, bucket, windowStart.Unix())
}
