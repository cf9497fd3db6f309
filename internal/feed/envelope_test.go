package feed

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope(map[string]any{
		"id":   "doc_123",
		"type": "failed",
		"ts":   "2025-11-11T08:45:00Z",
		"details": map[string]any{
			"filename": "contract_globex_2025.pdf",
			"fileSize": "3.4 MB",
			"error":    "OCR failed - poor image quality",
			"priority": "high",
		},
		"ai": map[string]any{
			"type":       "contract",
			"confidence": 0.87,
			"tags":       []any{"legal", "annual"},
		},
	})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.Ref.Doc != "doc_123" || env.Ref.Provisional {
		t.Fatalf("unexpected ref: %+v", env.Ref)
	}
	if env.Kind != KindFailed {
		t.Fatalf("unexpected kind: %s", env.Kind)
	}
	if env.Priority != PriorityHigh {
		t.Fatalf("unexpected priority: %s", env.Priority)
	}
	if !env.Timestamp.Equal(time.Date(2025, 11, 11, 8, 45, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %s", env.Timestamp)
	}
	if env.Attributes[AttrError] != "OCR failed - poor image quality" {
		t.Fatalf("unexpected attributes: %v", env.Attributes)
	}
	if env.Enrichment == nil || env.Enrichment.DocType != "contract" {
		t.Fatalf("expected enrichment decoded, got %+v", env.Enrichment)
	}
	if len(env.Enrichment.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", env.Enrichment.Tags)
	}
}

func TestDecodeEnvelopeDefaultsPriorityToNormal(t *testing.T) {
	env, err := DecodeEnvelope(map[string]any{
		"id":   "doc_1",
		"type": "queued",
	})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.Priority != PriorityNormal {
		t.Fatalf("expected normal priority default, got %s", env.Priority)
	}
}

func TestDecodeEnvelopeRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"nil payload", nil},
		{"missing id", map[string]any{"type": "queued"}},
		{"missing kind", map[string]any{"id": "doc_1"}},
		{"unknown kind", map[string]any{"id": "doc_1", "type": "exploded"}},
	}
	for _, tc := range cases {
		if _, err := DecodeEnvelope(tc.payload); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}
