package api

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"

	"hivemind/internal/metrics"
	"hivemind/internal/platform/apperr"
	jwtpkg "hivemind/internal/platform/jwt"
)

type ctxKey int

const (
	ctxKeyClaims ctxKey = iota
	ctxKeyRequest
)

// requestInfo is filled in by inner middleware and read back by
// RequestLogger once the handler returns.
type requestInfo struct {
	subject string
}

var slogLogger = slog.Default()

func SetLogger(l *slog.Logger) {
	if l != nil {
		slogLogger = l
	}
}

// AuthMiddleware accepts coordinator bearer tokens issued by /auth/login.
func AuthMiddleware(jm *jwtpkg.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				errorResponse(w, apperr.Unauthorized("missing_token", "bearer token required", nil))
				return
			}

			claims, err := jm.Parse(strings.TrimSpace(token))
			if err != nil {
				errorResponse(w, apperr.Unauthorized("invalid_token", "invalid token", err))
				return
			}
			if info, ok := r.Context().Value(ctxKeyRequest).(*requestInfo); ok {
				info.subject = claims.Subject
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, claims)))
		})
	}
}

func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(ctxKeyClaims).(*jwtpkg.Claims)
			if !ok || claims.Role != role {
				errorResponse(w, apperr.Forbidden("forbidden", "insufficient permissions", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func subjectFromCtx(r *http.Request) string {
	if claims, ok := r.Context().Value(ctxKeyClaims).(*jwtpkg.Claims); ok {
		return claims.Subject
	}
	return ""
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitSubmissions throttles option proposals and opinions per client.
// It expects chimw.RealIP to have resolved the client address.
func RateLimitSubmissions(r rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := newSubmissionLimiter(r, burst, maxTrackedClients)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(limiter.retryAfter()))
				errorResponse(w, apperr.TooManyRequests("rate_limited", "too many submissions, slow down", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger records a metric and a log line per request. Question and
// opinionator route params are logged so a question's traffic can be
// followed across the log.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{}
		rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), ctxKeyRequest, info)))

		status := rw.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		attrs := make([]slog.Attr, 0, 10)
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
			if qid := rc.URLParam("id"); qid != "" {
				attrs = append(attrs, slog.String("question", qid))
			}
			if o := rc.URLParam("opinionator"); o != "" {
				attrs = append(attrs, slog.String("opinionator", o))
			}
		}
		metrics.IncRequest(r.Method, route, status)

		attrs = append(attrs,
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Int("bytes", rw.BytesWritten()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("client", clientIP(r)),
		)
		if id := chimw.GetReqID(r.Context()); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if info.subject != "" {
			attrs = append(attrs, slog.String("coordinator", info.subject))
		}

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		slogLogger.LogAttrs(r.Context(), level, "request", attrs...)
	})
}

const maxTrackedClients = 10000

// submissionLimiter keeps a token bucket for each recently seen client.
// The least recently seen client is dropped once the cache is full.
type submissionLimiter struct {
	mu      sync.Mutex
	clients *lru.Cache
	limit   rate.Limit
	burst   int
}

func newSubmissionLimiter(limit rate.Limit, burst, size int) *submissionLimiter {
	clients, err := lru.New(size)
	if err != nil {
		// lru.New only fails on a non-positive size.
		clients, _ = lru.New(maxTrackedClients)
	}
	return &submissionLimiter{clients: clients, limit: limit, burst: burst}
}

func (l *submissionLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.clients.Get(client); ok {
		return v.(*rate.Limiter).Allow()
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.clients.Add(client, limiter)
	return limiter.Allow()
}

// retryAfter is the whole number of seconds until a spent bucket earns a
// token back.
func (l *submissionLimiter) retryAfter() int {
	if l.limit <= 0 || l.limit == rate.Inf {
		return 1
	}
	secs := int(math.Ceil(1 / float64(l.limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
