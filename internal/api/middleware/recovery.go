package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/cardlens/internal/api/response"
)

// Recovery turns a handler panic into a 500 that carries the request ID, so
// a caller's report can be matched to the logged stack.
// http.ErrAbortHandler is re-raised for net/http to handle.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			reqID := chimw.GetReqID(r.Context())
			attrs := []any{
				"error", rec,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
			}
			if info := requestInfoFrom(r.Context()); info != nil && info.requester != "" {
				attrs = append(attrs, "requester", info.requester)
			}
			slog.Error("panic recovered", attrs...)

			var details any
			if reqID != "" {
				details = map[string]string{"request_id": reqID}
			}
			response.Error(w, http.StatusInternalServerError,
				response.CodeInternal, "An unexpected error occurred", details)
		}()
		next.ServeHTTP(w, r)
	})
}
