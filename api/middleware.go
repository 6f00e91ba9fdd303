package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HeaderEmployeeID identifies the caller. Authentication happens upstream
// (gateway / SSO); this service trusts the header.
const HeaderEmployeeID = "X-Employee-ID"

type ctxKey int

const employeeKey ctxKey = iota

// employeeID returns the caller set by requireEmployee.
func employeeID(ctx context.Context) string {
	id, _ := ctx.Value(employeeKey).(string)
	return id
}

// requireEmployee rejects requests without an identity header.
func requireEmployee(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderEmployeeID))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "Missing "+HeaderEmployeeID+" header", nil)
			return
		}
		ctx := context.WithValue(r.Context(), employeeKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("employee_id", r.Header.Get(HeaderEmployeeID)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// =============================================================================
// RATE LIMIT - per employee, on submissions
// =============================================================================

type employeeLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

func newEmployeeLimiter(perMinute float64, burst int) *employeeLimiter {
	return &employeeLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(perMinute / 60),
		b:        burst,
	}
}

func (l *employeeLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = lim
	}
	return lim
}

// rateLimitByEmployee must run after requireEmployee. A non-positive rate
// disables limiting.
func rateLimitByEmployee(perMinute float64, burst int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := newEmployeeLimiter(perMinute, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.get(employeeID(r.Context())).Allow() {
				writeError(w, http.StatusTooManyRequests, "Too many submissions, try again later", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
