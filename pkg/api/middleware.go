package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type contextKey int

const requestIDKey contextKey = iota

const requestIDHeader = "X-Request-Id"

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// withRequestID tags every request with an id, taken from the client's X-Request-Id header when present.
func (s *httpServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
		s.logger.Debug("request",
			zap.String("requestId", id),
			zap.String("method", r.Method),
			zap.Stringer("url", r.URL),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// withRateLimit rejects requests above the configured rate. A non-positive rate disables limiting.
func (s *httpServer) withRateLimit(requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	if requestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				s.logger.Warn("rate limit exceeded", zap.String("remoteAddr", r.RemoteAddr), zap.String("requestId", requestID(r.Context())))
				s.writeJSON(w, http.StatusTooManyRequests, &errorResponse{Error: errorBody{Name: "RateLimited", Message: "too many requests"}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
