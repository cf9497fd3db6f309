package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
)

type authFrame struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	TenantID string `json:"tenant_id"`
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 16)

	ctx := r.Context()
	authCtx, cancelAuth := context.WithTimeout(ctx, 10*time.Second)
	_, raw, err := conn.Read(authCtx)
	cancelAuth()
	if err != nil {
		return
	}
	var frame authFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type != "auth" {
		s.sendFeedError(ctx, conn, "Expected auth frame")
		return
	}
	claims, authErr := parseToken(strings.TrimSpace(frame.Token), s.cfg.JWTSecret, time.Now().UTC())
	if authErr == nil && claims.Role != "admin" {
		authErr = &authError{status: 403, message: "Admin access required"}
	}
	if authErr == nil && frame.TenantID != "" && frame.TenantID != claims.TenantID {
		authErr = &authError{status: 403, message: "Tenant mismatch"}
	}
	if authErr != nil {
		s.sendFeedError(ctx, conn, authErr.message)
		return
	}

	subID, records := s.log.Subscribe()
	defer s.log.Unsubscribe(subID)

	if err := s.sendFeedFrame(ctx, conn, map[string]any{"type": "ready"}); err != nil {
		return
	}

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	// Reads only surface client disconnects; the feed is one-way after auth.
	readFailed := make(chan struct{})
	go func() {
		defer close(readFailed)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				s.sendFeedError(ctx, conn, "Feed shutting down")
				return
			}
			if rec.TenantID != "" && rec.TenantID != claims.TenantID {
				continue
			}
			if err := s.sendFeedFrame(ctx, conn, map[string]any{"type": "activity", "data": rec.WirePayload()}); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := s.sendFeedFrame(ctx, conn, map[string]any{"type": "heartbeat", "ts": time.Now().UTC().Format(time.RFC3339Nano)}); err != nil {
				return
			}
		case <-readFailed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) sendFeedError(ctx context.Context, conn *websocket.Conn, message string) {
	_ = s.sendFeedFrame(ctx, conn, map[string]any{"type": "error", "message": message})
}

func (s *Server) sendFeedFrame(ctx context.Context, conn *websocket.Conn, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, raw)
}
