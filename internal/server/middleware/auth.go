package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// authChallenge is sent with every 401 so clients know which scheme to use.
const authChallenge = `Bearer realm="arbscan"`

// Auth guards the operator API with a shared key. The key may arrive as a
// Bearer token, in X-API-Key, or, for WebSocket upgrades that cannot set
// headers from a browser, as the "token" query parameter. Paths in public
// and CORS preflights bypass the check. An empty apiKey disables it.
func Auth(apiKey string, logger *slog.Logger, public ...string) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http_auth"))
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	want := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			reason := ""
			switch token := operatorToken(r); {
			case token == "":
				reason = "missing authentication token"
			case subtle.ConstantTimeCompare([]byte(token), want) != 1:
				reason = "invalid authentication token"
			}
			if reason != "" {
				logger.WarnContext(r.Context(), "server: request rejected",
					slog.String("path", r.URL.Path),
					slog.String("client_ip", ClientIP(r)),
					slog.String("request_id", RequestID(r.Context())),
					slog.String("reason", reason),
				)
				w.Header().Set("WWW-Authenticate", authChallenge)
				writeError(w, http.StatusUnauthorized, reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func operatorToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// writeError writes the {"error": msg} body shared with the API handlers.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
