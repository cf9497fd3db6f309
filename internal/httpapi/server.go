package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentworkforce/queuefeed/internal/activity"
	"github.com/agentworkforce/queuefeed/internal/feed"
)

type ServerConfig struct {
	JWTSecret         string
	RateLimitMax      int
	RateLimitWindow   time.Duration
	MaxBodyBytes      int64
	HeartbeatInterval time.Duration
	Logger            feed.Logger
}

type Server struct {
	log         *activity.Log
	cfg         ServerConfig
	rateLimiter *rateLimiter
}

type rateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	entries   map[string]rateEntry
	lastSweep time.Time
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(log *activity.Log) *Server {
	return NewServerWithConfig(log, ServerConfig{})
}

func NewServerWithConfig(log *activity.Log, cfg ServerConfig) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	return &Server{
		log:         log,
		cfg:         cfg,
		rateLimiter: limiter,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/api/admin/queue" && r.Method == http.MethodGet:
		s.handleQueueSnapshot(w, r)
	case r.URL.Path == "/api/admin/queue" && r.Method == http.MethodPost:
		s.handleQueueAction(w, r)
	case r.URL.Path == "/api/admin/feed" && r.Method == http.MethodGet:
		s.handleFeed(w, r)
	case r.URL.Path == "/dashboard" && r.Method == http.MethodGet:
		s.handleDashboard(w, r)
	default:
		writeError(w, http.StatusNotFound, "Route not found")
	}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (tokenClaims, bool) {
	claims, authErr := authorizeBearer(r.Header.Get("Authorization"), s.cfg.JWTSecret, r.URL.Query().Get("tenant_id"), time.Now().UTC())
	if authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return tokenClaims{}, false
	}
	if s.rateLimiter != nil && !s.rateLimiter.allow(claims.TenantID+"|"+claims.Subject, time.Now().UTC()) {
		retryAfter := int(math.Ceil(s.rateLimiter.window.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return tokenClaims{}, false
	}
	return claims, true
}

func (s *Server) handleQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorize(w, r)
	if !ok {
		return
	}
	limit := feed.DefaultStoreCap
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}
	records := s.log.List(claims.TenantID, limit)
	payloads := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		payloads = append(payloads, rec.WirePayload())
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": payloads})
}

func (s *Server) handleQueueAction(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorize(w, r)
	if !ok {
		return
	}
	var body struct {
		Action   string `json:"action"`
		TargetID string `json:"targetId"`
	}
	if !s.decodeJSONBody(w, r, &body) {
		return
	}
	docID := strings.TrimSpace(body.TargetID)
	if docID == "" {
		writeError(w, http.StatusBadRequest, "Missing targetId")
		return
	}

	now := time.Now().UTC()
	var rec activity.Record
	switch body.Action {
	case "requeue":
		rec = activity.Record{
			TenantID:  claims.TenantID,
			Doc:       docID,
			Kind:      feed.KindQueued,
			Timestamp: now,
			Details:   map[string]any{feed.AttrRequeued: true},
		}
	case "retry":
		rec = activity.Record{
			TenantID:  claims.TenantID,
			Doc:       docID,
			Kind:      feed.KindProcessing,
			Timestamp: now,
			Details:   map[string]any{feed.AttrRetrying: true},
		}
	case "cancel":
		// Cancellation removes the document from the pipeline; there is
		// no later lifecycle event to broadcast for it.
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	default:
		writeError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	if _, err := s.log.Append(rec); err != nil {
		s.logf("httpapi: append %s for %s: %v", body.Action, docID, err)
		writeError(w, http.StatusInternalServerError, "Failed to record action")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body exceeds configured limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid json body")
		return false
	}
	return true
}

func (s *Server) logf(format string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"ok":    false,
		"error": message,
	})
}

func (l *rateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		for k, e := range l.entries {
			if now.After(e.resetAt) {
				delete(l.entries, k)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.entries[key]
	if !ok || now.After(entry.resetAt) {
		l.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(l.window),
		}
		return true
	}
	if entry.count >= l.max {
		return false
	}
	entry.count++
	l.entries[key] = entry
	return true
}
