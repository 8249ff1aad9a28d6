package api

import "net/http"

// RateLimited wraps a handler with the server-wide token bucket. Applied to
// the webhook route so a webhook flood degrades to 429s instead of piling up
// detached pipeline runs.
func (s *Server) RateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Limiter != nil && !s.Limiter.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Rate limited", "too many requests", r.URL.Path)
			return
		}
		next(w, r)
	}
}
