// Package response writes the API's JSON envelopes: {"data": ...} for
// results, {"data": [...], "meta": {...}} for paged listings and
// {"error": {...}} for failures.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Code is the machine-readable error code clients switch on. Codes are part
// of the API contract; messages are not.
type Code string

const (
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeValidationFailed  Code = "VALIDATION_FAILED"
	CodeInvalidCardID     Code = "INVALID_CARD_ID"
	CodeInvalidDeckID     Code = "INVALID_DECK_ID"
	CodeInvalidJobID      Code = "INVALID_JOB_ID"
	CodeInvalidKeyID      Code = "INVALID_KEY_ID"
	CodeInvalidToken      Code = "INVALID_TOKEN"
	CodeForbidden         Code = "FORBIDDEN"
	CodeCardNotFound      Code = "CARD_NOT_FOUND"
	CodeDeckNotFound      Code = "DECK_NOT_FOUND"
	CodeAnalysisNotFound  Code = "ANALYSIS_NOT_FOUND"
	CodeJobNotFound       Code = "JOB_NOT_FOUND"
	CodeKeyNotFound       Code = "KEY_NOT_FOUND"
	CodeKeyNameExists     Code = "KEY_NAME_EXISTS"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeNotImplemented    Code = "NOT_IMPLEMENTED"
	CodeDegraded          Code = "DEGRADED"
)

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// PaginationMeta describes one page of a listing. Page is 1-based.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// NewPaginationMeta fills HasNext from the page position and total.
func NewPaginationMeta(page, limit, total int) PaginationMeta {
	return PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasNext: page*limit < total,
	}
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

// Accepted answers a trigger: the body is the queued job, not its result.
func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

// Error writes {"error": {...}}. details is omitted when nil.
func Error(w http.ResponseWriter, status int, code Code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; all that is left is to log.
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response body", "status", status, "error", err)
	}
}
