package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"routeplan/internal/auth"
	"routeplan/internal/metrics"
)

const defaultTenant = "t_demo"

// statusRecorder keeps the response code for logs and metrics while still
// exposing the streaming interfaces SSE and WebSocket handlers need.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func recorderFor(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w}
}

func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := recorderFor(w)
		next.ServeHTTP(rec, r)
		s.Log.Info().
			Str("remote", r.RemoteAddr).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := recorderFor(w)
		next.ServeHTTP(rec, r)
		status := strconv.Itoa(rec.code())
		path := routeLabel(r)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.Log.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("handler panic")
				writeProblem(w, http.StatusInternalServerError, "Internal Error", "", r.URL.Path)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects requests above the configured plan submission rate.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.planLimiter != nil && !s.planLimiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "plan submission rate exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// principal resolves the caller. With auth off the tenant and role come from
// the X-Tenant-Id and X-Role headers.
func (s *Server) principal(r *http.Request) (auth.Principal, error) {
	if s.Auth.Enabled() {
		authz := r.Header.Get("Authorization")
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
			return auth.Principal{}, auth.ErrInvalidToken
		}
		return s.Auth.Verify(strings.TrimSpace(authz[7:]))
	}
	p := auth.Principal{Tenant: r.Header.Get("X-Tenant-Id"), Role: strings.ToLower(r.Header.Get("X-Role"))}
	if p.Tenant == "" {
		p.Tenant = defaultTenant
	}
	if p.Role == "" {
		p.Role = auth.RoleAdmin
	}
	return p, nil
}

// authorize writes 401/403 and returns false when the caller may not proceed.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, allowed func(auth.Principal) bool, need string) (auth.Principal, bool) {
	p, err := s.principal(r)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return p, false
	}
	if allowed != nil && !allowed(p) {
		writeProblem(w, http.StatusForbidden, "Forbidden", need+" required", r.URL.Path)
		return p, false
	}
	return p, true
}

func anyRole(auth.Principal) bool { return true }

func canPlan(p auth.Principal) bool { return p.CanPlan() }

func isAdmin(p auth.Principal) bool { return p.IsAdmin() }
