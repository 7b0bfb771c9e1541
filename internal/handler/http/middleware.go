package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/naman3006/E-commerce-sub001/internal/domain"
	"github.com/naman3006/E-commerce-sub001/pkg/httputil"
)

// Headers set by the API gateway. X-User-ID carries a verified user id;
// X-Session-ID identifies an anonymous browsing session.
const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
)

type contextKey string

const ownerIDKey contextKey = "owner_id"

// OwnerFromHeaders resolves the cart owner for self-service routes. A user id
// wins over a session id; a request carrying neither is rejected with 401.
func OwnerFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if owner == "" {
			if sid := strings.TrimSpace(r.Header.Get(HeaderSessionID)); sid != "" {
				owner = domain.AnonymousOwner(sid)
			}
		}
		if owner == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
			})
			return
		}
		ctx := context.WithValue(r.Context(), ownerIDKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerFromContext returns the owner stored by OwnerFromHeaders.
func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerIDKey).(string)
	return owner
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
