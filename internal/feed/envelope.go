package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrDeclined     = errors.New("declined")
)

type Kind string

const (
	KindSubmitted  Kind = "submitted"
	KindQueued     Kind = "queued"
	KindProcessing Kind = "processing"
	KindCompleted  Kind = "completed"
	KindFailed     Kind = "failed"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.TrimSpace(raw)) {
	case KindSubmitted:
		return KindSubmitted, nil
	case KindQueued:
		return KindQueued, nil
	case KindProcessing:
		return KindProcessing, nil
	case KindCompleted:
		return KindCompleted, nil
	case KindFailed:
		return KindFailed, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, raw)
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func NormalizePriority(raw string) Priority {
	switch Priority(strings.TrimSpace(raw)) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Ref identifies a store entry by the underlying document it describes.
// Provisional marks entries synthesized locally by an optimistic action;
// authoritative events from the push channel are never provisional.
type Ref struct {
	Doc         string
	Provisional bool
}

type Enrichment struct {
	DocType    string   `json:"type"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags,omitempty"`
	Summary    string   `json:"summary,omitempty"`
}

type Envelope struct {
	Ref        Ref
	Kind       Kind
	Timestamp  time.Time
	Priority   Priority
	Attributes map[string]any
	Enrichment *Enrichment
}

const (
	AttrFilename    = "filename"
	AttrFileSize    = "fileSize"
	AttrError       = "error"
	AttrRequeued    = "requeued"
	AttrRetrying    = "retrying"
	AttrProcessTime = "processTimeSec"
)

func DecodeEnvelope(payload map[string]any) (Envelope, error) {
	if payload == nil {
		return Envelope{}, fmt.Errorf("%w: empty payload", ErrInvalidInput)
	}
	doc := stringField(payload, "id")
	if doc == "" {
		return Envelope{}, fmt.Errorf("%w: missing id", ErrInvalidInput)
	}
	kind, err := ParseKind(stringField(payload, "type"))
	if err != nil {
		return Envelope{}, err
	}

	attributes := map[string]any{}
	if details, ok := payload["details"].(map[string]any); ok {
		for key, value := range details {
			attributes[key] = value
		}
	}

	priorityRaw := stringField(payload, "priority")
	if priorityRaw == "" {
		priorityRaw = stringField(attributes, "priority")
	}

	var timestamp time.Time
	if raw := stringField(payload, "ts"); raw != "" {
		if parsed, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			timestamp = parsed
		}
	}

	env := Envelope{
		Ref:        Ref{Doc: doc},
		Kind:       kind,
		Timestamp:  timestamp,
		Priority:   NormalizePriority(priorityRaw),
		Attributes: attributes,
	}
	if ai, ok := payload["ai"].(map[string]any); ok {
		env.Enrichment = decodeEnrichment(ai)
	}
	return env, nil
}

func decodeEnrichment(payload map[string]any) *Enrichment {
	docType := stringField(payload, "type")
	if docType == "" {
		return nil
	}
	enrichment := &Enrichment{
		DocType: docType,
		Summary: stringField(payload, "summary"),
	}
	if confidence, ok := floatValue(payload["confidence"]); ok {
		enrichment.Confidence = confidence
	}
	if rawTags, ok := payload["tags"].([]any); ok {
		for _, raw := range rawTags {
			if tag, ok := raw.(string); ok && tag != "" {
				enrichment.Tags = append(enrichment.Tags, tag)
			}
		}
	}
	return enrichment
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	value, _ := payload[key].(string)
	return strings.TrimSpace(value)
}

func floatValue(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
