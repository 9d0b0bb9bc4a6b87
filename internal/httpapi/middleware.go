package httpapi

import "net/http"

// apiKeyHeader carries the client credential. The same value keys the rate
// limiter so a rotated key starts from a fresh window.
const apiKeyHeader = "X-API-Key"

// clientID identifies the caller for rate limiting: the API key when
// present, otherwise the remote address (RealIP middleware has already
// resolved proxies by the time this runs).
func clientID(r *http.Request) string {
	if k := r.Header.Get(apiKeyHeader); k != "" {
		return k
	}
	return r.RemoteAddr
}

// authenticate rejects requests lacking a valid API key with 401.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.gate.Authorize(r.Header.Get(apiKeyHeader)) {
			a.log.Info().Str("path", r.URL.Path).Msg("request rejected: invalid api key")
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects clients over their sliding-window budget with 429.
func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow(clientID(r)) {
			IncrementRateLimited()
			a.log.Info().Str("path", r.URL.Path).Msg("request rejected: rate limit exceeded")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
