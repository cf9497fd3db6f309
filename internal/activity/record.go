package activity

import (
	"errors"
	"strings"
	"time"

	"github.com/agentworkforce/queuefeed/internal/feed"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

type Record struct {
	ID         string         `json:"record_id"`
	TenantID   string         `json:"tenant_id"`
	Doc        string         `json:"doc_id"`
	Kind       feed.Kind      `json:"type"`
	Timestamp  time.Time      `json:"ts"`
	Priority   feed.Priority  `json:"priority,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Enrichment map[string]any `json:"ai,omitempty"`
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.Doc) == "" {
		return ErrInvalidInput
	}
	if _, err := feed.ParseKind(string(r.Kind)); err != nil {
		return err
	}
	return nil
}

// WirePayload is the shape served over the admin API and the websocket
// feed. The queue protocol keys records by document id, not record id.
func (r Record) WirePayload() map[string]any {
	payload := map[string]any{
		"id":   r.Doc,
		"type": string(r.Kind),
		"ts":   r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if r.TenantID != "" {
		payload["tenant_id"] = r.TenantID
	}
	if r.Priority != "" {
		payload["priority"] = string(r.Priority)
	}
	if len(r.Details) > 0 {
		details := make(map[string]any, len(r.Details))
		for key, value := range r.Details {
			details[key] = value
		}
		payload["details"] = details
	}
	if len(r.Enrichment) > 0 {
		enrichment := make(map[string]any, len(r.Enrichment))
		for key, value := range r.Enrichment {
			enrichment[key] = value
		}
		payload["ai"] = enrichment
	}
	return payload
}
