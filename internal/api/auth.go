package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// TokenHeader carries the numeric API token.
const TokenHeader = "token"

var ErrUnauthorized = errors.New("unauthorized")

// RequireToken rejects requests whose token header is missing, not a number
// or different from expected.
func (h *Handlers) RequireToken(expected int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := checkToken(r.Header.Get(TokenHeader), expected); err != nil {
				h.logger.Warn("rejected request", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
				h.respondError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkToken(raw string, expected int64) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrUnauthorized
	}

	token, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || token != expected {
		return ErrUnauthorized
	}
	return nil
}
