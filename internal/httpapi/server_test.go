package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/agentworkforce/queuefeed/internal/activity"
	"github.com/agentworkforce/queuefeed/internal/feed"
)

type request struct {
	method  string
	path    string
	headers map[string]string
	body    any
}

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *activity.Log) {
	t.Helper()
	log, err := activity.NewLog(activity.LogOptions{})
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return NewServerWithConfig(log, cfg), log
}

func appendRecord(t *testing.T, log *activity.Log, tenant, doc string, kind feed.Kind, details map[string]any) {
	t.Helper()
	_, err := log.Append(activity.Record{
		TenantID:  tenant,
		Doc:       doc,
		Kind:      kind,
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Details:   details,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	rec := doRequest(t, server, request{method: http.MethodGet, path: "/api/admin/queue"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["ok"] != false || payload["error"] == "" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestSnapshotNewestFirst(t *testing.T) {
	server, log := newTestServer(t, ServerConfig{})
	appendRecord(t, log, "tenant-a", "doc-1", feed.KindQueued, nil)
	appendRecord(t, log, "tenant-a", "doc-2", feed.KindProcessing, nil)
	appendRecord(t, log, "tenant-b", "doc-3", feed.KindFailed, nil)

	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(time.Hour))
	rec := doRequest(t, server, request{
		method:  http.MethodGet,
		path:    "/api/admin/queue",
		headers: map[string]string{"Authorization": "Bearer " + token},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var payload struct {
		OK   bool             `json:"ok"`
		Data []map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.OK || len(payload.Data) != 2 {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.Data[0]["id"] != "doc-2" || payload.Data[1]["id"] != "doc-1" {
		t.Fatalf("order = %v, %v", payload.Data[0]["id"], payload.Data[1]["id"])
	}
	if payload.Data[0]["type"] != "processing" {
		t.Fatalf("type = %v", payload.Data[0]["type"])
	}
}

func TestSnapshotHonorsLimit(t *testing.T) {
	server, log := newTestServer(t, ServerConfig{})
	for _, doc := range []string{"doc-1", "doc-2", "doc-3"} {
		appendRecord(t, log, "tenant-a", doc, feed.KindQueued, nil)
	}
	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(time.Hour))
	rec := doRequest(t, server, request{
		method:  http.MethodGet,
		path:    "/api/admin/queue?limit=2",
		headers: map[string]string{"Authorization": "Bearer " + token},
	})
	var payload struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Data) != 2 {
		t.Fatalf("got %d records, want 2", len(payload.Data))
	}
}

func TestRequeueAppendsQueuedRecord(t *testing.T) {
	server, log := newTestServer(t, ServerConfig{})
	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(time.Hour))
	rec := doRequest(t, server, request{
		method:  http.MethodPost,
		path:    "/api/admin/queue",
		headers: map[string]string{"Authorization": "Bearer " + token},
		body:    map[string]any{"action": "requeue", "targetId": "doc-9"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	records := log.List("tenant-a", 10)
	if len(records) != 1 || records[0].Doc != "doc-9" || records[0].Kind != feed.KindQueued {
		t.Fatalf("records = %+v", records)
	}
	if records[0].Details[feed.AttrRequeued] != true {
		t.Fatalf("details = %v", records[0].Details)
	}
}

func TestRetryAppendsProcessingRecord(t *testing.T) {
	server, log := newTestServer(t, ServerConfig{})
	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(time.Hour))
	doRequest(t, server, request{
		method:  http.MethodPost,
		path:    "/api/admin/queue",
		headers: map[string]string{"Authorization": "Bearer " + token},
		body:    map[string]any{"action": "retry", "targetId": "doc-9"},
	})
	records := log.List("tenant-a", 10)
	if len(records) != 1 || records[0].Kind != feed.KindProcessing {
		t.Fatalf("records = %+v", records)
	}
}

func TestCancelAcknowledgedWithoutRecord(t *testing.T) {
	server, log := newTestServer(t, ServerConfig{})
	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(time.Hour))
	rec := doRequest(t, server, request{
		method:  http.MethodPost,
		path:    "/api/admin/queue",
		headers: map[string]string{"Authorization": "Bearer " + token},
		body:    map[string]any{"action": "cancel", "targetId": "doc-9"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if log.Len() != 0 {
		t.Fatalf("cancel must not append activity, got %d records", log.Len())
	}
}

func TestActionValidation(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(time.Hour))
	cases := []struct {
		name string
		body map[string]any
		want string
	}{
		{name: "unknown action", body: map[string]any{"action": "explode", "targetId": "doc-1"}, want: "Invalid action"},
		{name: "missing target", body: map[string]any{"action": "requeue"}, want: "Missing targetId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, server, request{
				method:  http.MethodPost,
				path:    "/api/admin/queue",
				headers: map[string]string{"Authorization": "Bearer " + token},
				body:    tc.body,
			})
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var payload map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if payload["error"] != tc.want {
				t.Fatalf("error = %v, want %s", payload["error"], tc.want)
			}
		})
	}
}

func TestNonAdminRoleRejected(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	token := mustTestJWT(t, "dev-secret", "tenant-a", "viewer", time.Now().Add(time.Hour))
	rec := doRequest(t, server, request{
		method:  http.MethodGet,
		path:    "/api/admin/queue",
		headers: map[string]string{"Authorization": "Bearer " + token},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestWrongAudienceRejected(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	token := mustTestJWTWithAudience(t, "dev-secret", "tenant-a", "admin", "otherapp", time.Now().Add(time.Hour))
	rec := doRequest(t, server, request{
		method:  http.MethodGet,
		path:    "/api/admin/queue",
		headers: map[string]string{"Authorization": "Bearer " + token},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(-time.Minute))
	rec := doRequest(t, server, request{
		method:  http.MethodGet,
		path:    "/api/admin/queue",
		headers: map[string]string{"Authorization": "Bearer " + token},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTenantQueryMismatchRejected(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(time.Hour))
	rec := doRequest(t, server, request{
		method:  http.MethodGet,
		path:    "/api/admin/queue?tenant_id=tenant-b",
		headers: map[string]string{"Authorization": "Bearer " + token},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{RateLimitMax: 2, RateLimitWindow: time.Minute})
	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(time.Hour))
	for i := 0; i < 2; i++ {
		rec := doRequest(t, server, request{
			method:  http.MethodGet,
			path:    "/api/admin/queue",
			headers: map[string]string{"Authorization": "Bearer " + token},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := doRequest(t, server, request{
		method:  http.MethodGet,
		path:    "/api/admin/queue",
		headers: map[string]string{"Authorization": "Bearer " + token},
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimiterSweepsExpiredEntries(t *testing.T) {
	limiter := &rateLimiter{
		window:  time.Minute,
		max:     5,
		entries: map[string]rateEntry{},
	}
	start := time.Now().UTC()
	for i := 0; i < 50; i++ {
		key := "tenant-a|sub-" + strconv.Itoa(i)
		if !limiter.allow(key, start) {
			t.Fatalf("first request for %s must be allowed", key)
		}
	}
	if len(limiter.entries) != 50 {
		t.Fatalf("entries = %d, want 50", len(limiter.entries))
	}
	later := start.Add(2 * time.Minute)
	if !limiter.allow("tenant-a|fresh", later) {
		t.Fatal("fresh key must be allowed")
	}
	if len(limiter.entries) != 1 {
		t.Fatalf("entries after sweep = %d, want 1", len(limiter.entries))
	}
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	rec := doRequest(t, server, request{method: http.MethodGet, path: "/health"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDashboardServed(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	rec := doRequest(t, server, request{method: http.MethodGet, path: "/dashboard"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "QueueFeed Admin") {
		t.Fatal("dashboard html missing title")
	}
}

func TestDashboardEmptyStateMessages(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	rec := doRequest(t, server, request{method: http.MethodGet, path: "/dashboard"})
	body := rec.Body.String()
	if !strings.Contains(body, "Queue is empty. New documents will appear here.") {
		t.Fatal("dashboard html missing empty queue message")
	}
	if !strings.Contains(body, "No documents match the current filter.") {
		t.Fatal("dashboard html missing filtered-out message")
	}
}

func doRequest(t *testing.T, server http.Handler, r request) *httptest.ResponseRecorder {
	t.Helper()
	var bodyBytes []byte
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		bodyBytes = data
	}
	req := httptest.NewRequest(r.method, r.path, bytes.NewReader(bodyBytes))
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func mustTestJWT(t *testing.T, secret, tenantID, role string, exp time.Time) string {
	return mustTestJWTWithAudience(t, secret, tenantID, role, "queuefeed", exp)
}

func mustTestJWTWithAudience(t *testing.T, secret, tenantID, role, aud string, exp time.Time) string {
	t.Helper()
	headerBytes, err := json.Marshal(map[string]any{
		"alg": "HS256",
		"typ": "JWT",
	})
	if err != nil {
		t.Fatalf("marshal jwt header: %v", err)
	}
	payloadBytes, err := json.Marshal(map[string]any{
		"tenant_id": tenantID,
		"role":      role,
		"sub":       "operator@example.com",
		"exp":       exp.Unix(),
		"aud":       aud,
	})
	if err != nil {
		t.Fatalf("marshal jwt payload: %v", err)
	}
	h := base64.RawURLEncoding.EncodeToString(headerBytes)
	p := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signingInput := h + "." + p
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signingInput))
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
