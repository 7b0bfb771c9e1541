package middleware

import "net/http"

// NoStore marks responses as private and uncacheable. Cart contents are
// per-owner and change on every mutation, so no intermediary may cache them.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, private")
		w.Header().Add("Vary", "X-User-ID")
		w.Header().Add("Vary", "X-Session-ID")
		next.ServeHTTP(w, r)
	})
}
