package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/agentworkforce/queuefeed/internal/feed"
)

type wsFrame struct {
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
}

func dialFeed(t *testing.T, srv *httptest.Server, token, tenant string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/feed"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	authRaw, _ := json.Marshal(map[string]string{"type": "auth", "token": token, "tenant_id": tenant})
	if err := conn.Write(ctx, websocket.MessageText, authRaw); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame wsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func TestFeedHandshakeAndActivity(t *testing.T) {
	server, log := newTestServer(t, ServerConfig{})
	srv := httptest.NewServer(server)
	defer srv.Close()

	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(time.Hour))
	conn := dialFeed(t, srv, token, "tenant-a")

	if frame := readFrame(t, conn); frame.Type != "ready" {
		t.Fatalf("first frame = %+v, want ready", frame)
	}

	appendRecord(t, log, "tenant-b", "doc-other", feed.KindQueued, nil)
	appendRecord(t, log, "tenant-a", "doc-1", feed.KindCompleted, map[string]any{feed.AttrProcessTime: 2.5})

	frame := readFrame(t, conn)
	if frame.Type != "activity" {
		t.Fatalf("frame = %+v, want activity", frame)
	}
	if frame.Data["id"] != "doc-1" || frame.Data["type"] != "completed" {
		t.Fatalf("data = %v", frame.Data)
	}
	if frame.Data["tenant_id"] != "tenant-a" {
		t.Fatalf("activity for wrong tenant leaked: %v", frame.Data)
	}
}

func TestFeedRejectsBadToken(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	srv := httptest.NewServer(server)
	defer srv.Close()

	conn := dialFeed(t, srv, "not-a-token", "tenant-a")
	frame := readFrame(t, conn)
	if frame.Type != "error" || frame.Message == "" {
		t.Fatalf("frame = %+v, want error", frame)
	}
}

func TestFeedRejectsNonAdmin(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	srv := httptest.NewServer(server)
	defer srv.Close()

	token := mustTestJWT(t, "dev-secret", "tenant-a", "viewer", time.Now().Add(time.Hour))
	conn := dialFeed(t, srv, token, "tenant-a")
	frame := readFrame(t, conn)
	if frame.Type != "error" {
		t.Fatalf("frame = %+v, want error", frame)
	}
}

func TestFeedHeartbeat(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{HeartbeatInterval: 50 * time.Millisecond})
	srv := httptest.NewServer(server)
	defer srv.Close()

	token := mustTestJWT(t, "dev-secret", "tenant-a", "admin", time.Now().Add(time.Hour))
	conn := dialFeed(t, srv, token, "tenant-a")

	if frame := readFrame(t, conn); frame.Type != "ready" {
		t.Fatalf("first frame = %+v, want ready", frame)
	}
	if frame := readFrame(t, conn); frame.Type != "heartbeat" {
		t.Fatalf("frame = %+v, want heartbeat", frame)
	}
}
