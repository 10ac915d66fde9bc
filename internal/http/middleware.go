package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), "request_id", requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionTokenMiddleware extracts the guest session token. Possession of
// the token is the whole credential: there is no login and no JWT.
func SessionTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Session-Token")
		ctx := context.WithValue(r.Context(), "session_token", token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getSessionToken(ctx context.Context) string {
	if token, ok := ctx.Value("session_token").(string); ok {
		return token
	}
	return ""
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value("request_id").(string); ok {
		return requestID
	}
	return ""
}
