package feed

type Stats struct {
	Total          int     `json:"total"`
	Queued         int     `json:"queued"`
	Processing     int     `json:"processing"`
	Failed         int     `json:"failed"`
	AvgProcessTime float64 `json:"avgProcessTime"`
}

func Aggregate(records []Envelope) Stats {
	stats := Stats{Total: len(records)}
	var processSum float64
	var processCount int
	for _, record := range records {
		switch record.Kind {
		case KindSubmitted, KindQueued:
			stats.Queued++
		case KindProcessing:
			stats.Processing++
		case KindFailed:
			stats.Failed++
		case KindCompleted:
			// Only completed entries that report a duration contribute to
			// the average; the rest are excluded, not counted as zero.
			if seconds, ok := floatValue(record.Attributes[AttrProcessTime]); ok {
				processSum += seconds
				processCount++
			}
		}
	}
	if processCount > 0 {
		stats.AvgProcessTime = processSum / float64(processCount)
	}
	return stats
}
