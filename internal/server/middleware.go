// Package server implements the accmove viewer proxy HTTP handlers and
// middleware.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// requestIDMiddleware generates a UUID per request and adds it to the context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		ctx := context.WithValue(r.Context(), contextKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs one line per request. The client address is
// included because the rate limiter keys on it.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			reqID, _ := r.Context().Value(contextKeyRequestID).(string)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"addr", r.RemoteAddr,
				"latency_ms", time.Since(start).Milliseconds(),
				"request_id", reqID,
			)
		})
	}
}

// recoveryMiddleware catches panics and returns 500.
func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, statusCode: 0}
			defer func() {
				if rec := recover(); rec != nil {
					reqID, _ := r.Context().Value(contextKeyRequestID).(string)
					logger.Error("panic recovered", "error", rec, "request_id", reqID)
					if rw.statusCode == 0 {
						writeJSON(rw, http.StatusInternalServerError, map[string]string{
							"error":   "internal_error",
							"message": "internal server error",
						})
					}
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// corsMiddleware lets the viewer origin call the proxy from the browser.
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter implements a per-client sliding window rate limiter. The
// proxy fans every request out to the vendor API, so a viewer stuck in a
// request loop would burn the app's quota without it.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	done    chan struct{}
}

type window struct {
	count   int
	resetAt time.Time
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	rl := &rateLimiter{
		windows: make(map[string]*window),
		limit:   requestsPerMinute,
		done:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for k, w := range rl.windows {
				if now.After(w.resetAt) {
					delete(rl.windows, k)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

func (rl *rateLimiter) Stop() {
	close(rl.done)
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			key = r.RemoteAddr
		}

		rl.mu.Lock()
		win, ok := rl.windows[key]
		now := time.Now()
		if !ok || now.After(win.resetAt) {
			win = &window{count: 0, resetAt: now.Add(time.Minute)}
			rl.windows[key] = win
		}
		win.count++
		count := win.count
		rl.mu.Unlock()

		if count > rl.limit {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":   "rate_limited",
				"message": "rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
