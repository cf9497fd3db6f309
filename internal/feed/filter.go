package feed

import "strings"

const FilterAll = "all"

type Criteria struct {
	Kind    string `json:"kind,omitempty"`
	DocType string `json:"docType,omitempty"`
}

func (c Criteria) Matches(env Envelope) bool {
	if !passAll(c.Kind) && string(env.Kind) != strings.TrimSpace(c.Kind) {
		return false
	}
	if !passAll(c.DocType) {
		if env.Enrichment == nil || env.Enrichment.DocType != strings.TrimSpace(c.DocType) {
			return false
		}
	}
	return true
}

func ApplyFilter(records []Envelope, criteria Criteria) []Envelope {
	out := make([]Envelope, 0, len(records))
	for _, record := range records {
		if criteria.Matches(record) {
			out = append(out, record)
		}
	}
	return out
}

func passAll(value string) bool {
	trimmed := strings.TrimSpace(value)
	return trimmed == "" || trimmed == FilterAll
}
