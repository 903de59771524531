package api

import (
	"context"
	"crypto/subtle"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	headerAPIKey    = "X-Api-Key"
	headerUserID    = "X-User-ID"
	headerUserRole  = "X-User-Role"
	headerRequestID = "X-Request-ID"

	RoleAdmin = "ADMIN"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	requestIDKey
)

// Identity is the caller as asserted by the upstream identity provider.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller may run lifecycle operations.
func (i Identity) IsAdmin() bool {
	return strings.EqualFold(i.Role, RoleAdmin)
}

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// withRequestID propagates or assigns X-Request-ID.
func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// withAPIKey rejects requests without the configured key.
func (s *HTTPServer) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := r.Header.Get(headerAPIKey)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// withIdentity requires X-User-ID and stores the caller in the context.
func (s *HTTPServer) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			UserID: strings.TrimSpace(r.Header.Get(headerUserID)),
			Role:   strings.TrimSpace(r.Header.Get(headerUserRole)),
		}
		if id.UserID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+headerUserID+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func (s *HTTPServer) adminOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		h(w, r)
	}
}

func (s *HTTPServer) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(identityFrom(r.Context()).UserID) {
			writeError(w, http.StatusTooManyRequests, "too many booking requests")
			return
		}
		h(w, r)
	}
}

// userLimiter keeps one token bucket per user. A nil limiter allows all.
// Buckets unused for idleTTL are dropped by a sweep that runs at most once
// per idleTTL.
type userLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	now       func() time.Time
	lastSweep time.Time
	buckets   map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	limiterIdleTTL = 10 * time.Minute
	maxIdleTTL     = 24 * time.Hour
)

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	// A dropped bucket comes back full, so keep it at least until it would
	// have refilled.
	idleTTL := limiterIdleTTL
	if refill := float64(burst) / perSecond; refill > idleTTL.Seconds() {
		idleTTL = time.Duration(math.Min(refill, maxIdleTTL.Seconds()) * float64(time.Second))
	}
	return &userLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *userLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// sweep drops idle buckets. The caller holds mu.
func (l *userLimiter) sweep(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.buckets, id)
		}
	}
	l.lastSweep = now
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
