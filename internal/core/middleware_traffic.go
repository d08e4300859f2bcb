package core

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"certgen/internal/types"
)

// rateLimitWindow is the fixed window for per-IP issuance limits.
const rateLimitWindow = time.Minute

// RateLimit caps mutating requests per client IP.
//
// Safe methods and a nil RateLimitStore pass through. Store errors fail
// open. Every counted response carries X-RateLimit-Limit and
// X-RateLimit-Remaining; 429 responses add Retry-After.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := s.Config.Server.RateLimitPerMinute
		if s.RateLimitStore == nil || limit <= 0 || isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		ip := extractClientIP(r)
		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), ip, limit, rateLimitWindow)
		if err != nil {
			s.Logger.Error("rate limit store error",
				slog.String("client_ip", ip),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, limit, result)

		if !result.Allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("client_ip", ip),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			Error(w, r, types.NewAppError(types.ErrCodeRateLimited,
				"too many requests; retry after the reset time", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setRateLimitHeaders writes the standard X-RateLimit-* headers to the response.
func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// MemoryRateLimitStore is a fixed-window counter per key. It is per process,
// which matches both the single server and one Lambda container.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimitStore creates an empty store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// IncrementAndCheck counts one request for key. Expired windows are swept
// opportunistically so the map stays bounded by active clients.
func (m *MemoryRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	win, ok := m.windows[key]
	if !ok || !now.Before(win.resetAt) {
		if len(m.windows) > 1024 {
			m.sweep(now)
		}
		win = &rateWindow{resetAt: now.Add(window)}
		m.windows[key] = win
	}

	win.count++
	remaining := limit - win.count
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitResult{
		Allowed:   win.count <= limit,
		Remaining: remaining,
		ResetAt:   win.resetAt,
	}, nil
}

func (m *MemoryRateLimitStore) sweep(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}

var _ RateLimitStore = (*MemoryRateLimitStore)(nil)
