package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	requesterKey    contextKey = "requester"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
	requestInfoKey  contextKey = "request_info"
)

// requestInfo is shared by pointer between Logger and the middleware below
// it, since values Authenticate adds to its own request copy never reach the
// outer handlers.
type requestInfo struct {
	requester string
	keyPrefix string
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey, info)
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey).(*requestInfo)
	return info
}

// setCaller records the authenticated key on the request context and, when
// Logger is in the chain, on its requestInfo.
func setCaller(ctx context.Context, name, prefix string, scopes []string) context.Context {
	if info := requestInfoFrom(ctx); info != nil {
		info.requester, info.keyPrefix = name, prefix
	}
	ctx = context.WithValue(ctx, requesterKey, name)
	ctx = context.WithValue(ctx, keyPrefixKey, prefix)
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

// GetRequester returns the authenticated key name, recorded on enqueued jobs
// as requested_by.
func GetRequester(r *http.Request) (string, bool) {
	name, ok := r.Context().Value(requesterKey).(string)
	return name, ok
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}
