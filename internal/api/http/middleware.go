package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"pickup-backend/internal/config"
	"pickup-backend/internal/logger"
	"pickup-backend/internal/metrics"
	"pickup-backend/internal/security"
)

type contextKey string

const (
	participantKey contextKey = "participant-id"
	requestIDKey   contextKey = "request-id"
)

// WithParticipant returns ctx carrying the authenticated participant.
func WithParticipant(ctx context.Context, participantID int32) context.Context {
	return context.WithValue(ctx, participantKey, participantID)
}

// ParticipantFromContext extracts the participant injected by the auth middleware.
func ParticipantFromContext(ctx context.Context) (int32, bool) {
	id, ok := ctx.Value(participantKey).(int32)
	return id, ok && id != 0
}

// RequestIDFromContext returns the request ID assigned by the instrument middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Authenticator validates bearer tokens for routes whose security level requires it.
type Authenticator struct {
	tokens security.TokenManager
}

func NewAuthenticator(tm security.TokenManager) *Authenticator {
	return &Authenticator{tokens: tm}
}

// Middleware must run after routing so the route name is known.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		level := config.GetSecurityLevel(routeName(r))
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			unauthenticated(w, "authorization token is not provided")
			return
		}
		claims, err := a.tokens.ValidateToken(token)
		if err != nil {
			unauthenticated(w, "invalid token: "+err.Error())
			return
		}
		if claims.Type != security.TokenTypeAccess || claims.ParticipantID == 0 {
			unauthenticated(w, security.ErrWrongTokenType.Error())
			return
		}

		// Overwrites anything a client tried to smuggle in.
		ctx := WithParticipant(r.Context(), claims.ParticipantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		// Browsers cannot set headers on a WebSocket handshake.
		if t := r.URL.Query().Get("access_token"); t != "" {
			return t, true
		}
		return "", false
	}
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:], true
	}
	return h, true
}

func unauthenticated(w http.ResponseWriter, msg string) {
	writeAPIError(w, http.StatusUnauthorized, apiError{
		Kind: "auth", Reason: reasonUnauthenticated, Message: msg,
	})
}

// RateLimiter limits participation requests per participant.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[int32]*limiterEntry
	rate     rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter allows perMinute requests per participant with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[int32]*limiterEntry),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
	}
}

func (rl *RateLimiter) Allow(participantID int32) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[participantID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[participantID] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// Wrap rejects requests from participants that exceeded their budget.
func (rl *RateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := ParticipantFromContext(r.Context())
		if ok && !rl.Allow(pid) {
			w.Header().Set("Retry-After", strconv.Itoa(int(1/float64(rl.rate))+1))
			writeAPIError(w, http.StatusTooManyRequests, apiError{
				Kind: "rate_limit", Reason: reasonRateLimited, Message: "too many requests, slow down", Retryable: true,
			})
			return
		}
		next(w, r)
	}
}

// Run drops idle limiters until ctx ends.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep(time.Now().Add(-time.Hour))
		case <-ctx.Done():
			return
		}
	}
}

func (rl *RateLimiter) sweep(threshold time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for id, entry := range rl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(rl.limiters, id)
			removed++
		}
	}
	return removed
}

// statusRecorder captures the response status. It forwards Hijack so the
// WebSocket upgrade still works behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Instrument assigns a request ID, records latency and logs each request.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)

		next.ServeHTTP(rec, r.WithContext(ctx))

		route := routeTemplate(r)
		elapsed := time.Since(started)
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())
		logger.Debug("HTTP request", "request_id", requestID, "method", r.Method, "route", route,
			"status", rec.status, "duration_ms", elapsed.Milliseconds())
	})
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		return route.GetName()
	}
	return ""
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
