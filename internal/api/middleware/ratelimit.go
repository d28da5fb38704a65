package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/cardlens/internal/api/response"
	"github.com/kiranshivaraju/cardlens/internal/cache"
)

// Each API key gets two budgets per window. Triggers enqueue worker jobs and
// are limited separately from reads, so polling a job cannot starve enqueues
// or the other way round.
const (
	bucketRead    = "read"
	bucketTrigger = "trigger"
)

const (
	defaultReadsPerMinute    = 60
	defaultTriggersPerMinute = 20
	rateWindow               = time.Minute
)

// RateLimit is a fixed-window limiter keyed by API key prefix and bucket.
type RateLimit struct {
	cache  cache.Cache
	limits map[string]int
	now    func() time.Time
}

// NewRateLimit creates the limiter. Non-positive limits fall back to the
// defaults.
func NewRateLimit(c cache.Cache, readsPerMin, triggersPerMin int) *RateLimit {
	if readsPerMin <= 0 {
		readsPerMin = defaultReadsPerMinute
	}
	if triggersPerMin <= 0 {
		triggersPerMin = defaultTriggersPerMinute
	}
	return &RateLimit{
		cache: c,
		limits: map[string]int{
			bucketRead:    readsPerMin,
			bucketTrigger: triggersPerMin,
		},
		now: time.Now,
	}
}

// Limit counts the request against its bucket. It must run after
// Authenticate; requests without a key prefix pass through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		bucket := requestBucket(r)
		limit := rl.limits[bucket]
		now := rl.now()
		window := now.Truncate(rateWindow)
		reset := window.Add(rateWindow)

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(prefix, bucket, window), rateWindow)
		if err != nil {
			// Fail open: a cache outage must not take the trigger API down.
			slog.Warn("rate limit check failed", "key_prefix", prefix, "bucket", bucket, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(limit-int(count), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(limit) {
			retry := int(math.Ceil(reset.Sub(now).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			slog.Warn("rate limit exceeded", "key_prefix", prefix, "bucket", bucket, "count", count, "limit", limit)
			response.Error(w, http.StatusTooManyRequests,
				response.CodeRateLimitExceeded, "Too many requests", map[string]any{
					"bucket": bucket,
					"limit":  limit,
				})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestBucket classifies reads by method; everything else enqueues or
// mutates.
func requestBucket(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return bucketRead
	default:
		return bucketTrigger
	}
}
