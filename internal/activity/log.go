package activity

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentworkforce/queuefeed/internal/feed"
)

const (
	defaultMaxRecords      = 1000
	defaultSubscriberDepth = 64
)

type LogOptions struct {
	MaxRecords      int
	SubscriberDepth int
	Backend         Backend
	Logger          feed.Logger
	Now             func() time.Time
}

type Log struct {
	maxRecords      int
	subscriberDepth int
	backend         Backend
	logger          feed.Logger
	now             func() time.Time

	// persistMu serializes backend saves so a slow save cannot land
	// after a newer one and leave the backend with a stale snapshot.
	persistMu sync.Mutex

	mu          sync.RWMutex
	records     []Record
	nextSeq     uint64
	subscribers map[uint64]chan Record
	nextSubID   uint64
	closed      bool
}

func NewLog(opts LogOptions) (*Log, error) {
	maxRecords := opts.MaxRecords
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}
	subscriberDepth := opts.SubscriberDepth
	if subscriberDepth <= 0 {
		subscriberDepth = defaultSubscriberDepth
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := &Log{
		maxRecords:      maxRecords,
		subscriberDepth: subscriberDepth,
		backend:         opts.Backend,
		logger:          opts.Logger,
		now:             now,
		nextSeq:         1,
		subscribers:     make(map[uint64]chan Record),
	}
	if opts.Backend != nil {
		restored, err := opts.Backend.Load()
		if err != nil {
			return nil, err
		}
		if len(restored) > maxRecords {
			restored = restored[len(restored)-maxRecords:]
		}
		log.records = append(log.records, restored...)
		for _, rec := range restored {
			if seq := parseRecordSeq(rec.ID); seq >= log.nextSeq {
				log.nextSeq = seq + 1
			}
		}
	}
	return log, nil
}

func (l *Log) Append(rec Record) (Record, error) {
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	rec.Priority = feed.NormalizePriority(string(rec.Priority))

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return Record{}, ErrInvalidInput
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = fmt.Sprintf("act_%d", l.nextSeq)
	}
	if seq := parseRecordSeq(rec.ID); seq >= l.nextSeq {
		l.nextSeq = seq + 1
	}
	l.records = append(l.records, rec)
	if len(l.records) > l.maxRecords {
		l.records = l.records[len(l.records)-l.maxRecords:]
	}
	subscribers := make([]chan Record, 0, len(l.subscribers))
	for _, ch := range l.subscribers {
		subscribers = append(subscribers, ch)
	}
	l.mu.Unlock()

	if l.backend != nil {
		l.persistMu.Lock()
		// Re-snapshot under persistMu so the save reflects every append
		// that finished before this one acquired the persist lock.
		l.mu.RLock()
		snapshot := append([]Record(nil), l.records...)
		l.mu.RUnlock()
		if err := l.backend.Save(snapshot); err != nil {
			l.logf("activity: persist failed: %v", err)
		}
		l.persistMu.Unlock()
	}
	for _, ch := range subscribers {
		select {
		case ch <- rec:
		default:
			l.logf("activity: subscriber behind, dropping %s", rec.ID)
		}
	}
	return rec, nil
}

func (l *Log) List(tenantID string, limit int) []Record {
	if limit <= 0 {
		limit = feed.DefaultStoreCap
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]Record, 0, limit)
	for i := len(l.records) - 1; i >= 0 && len(result) < limit; i-- {
		rec := l.records[i]
		if tenantID != "" && rec.TenantID != "" && rec.TenantID != tenantID {
			continue
		}
		result = append(result, rec)
	}
	return result
}

func (l *Log) Subscribe() (uint64, <-chan Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSubID
	l.nextSubID++
	ch := make(chan Record, l.subscriberDepth)
	if l.closed {
		close(ch)
		return id, ch
	}
	l.subscribers[id] = ch
	return id, ch
}

func (l *Log) Unsubscribe(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.subscribers[id]
	if !ok {
		return
	}
	delete(l.subscribers, id)
	close(ch)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for id, ch := range l.subscribers {
		delete(l.subscribers, id)
		close(ch)
	}
	backend := l.backend
	l.mu.Unlock()
	if backend != nil {
		return backend.Close()
	}
	return nil
}

func (l *Log) logf(format string, args ...any) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
	}
}

func parseRecordSeq(id string) uint64 {
	rest, ok := strings.CutPrefix(id, "act_")
	if !ok {
		return 0
	}
	var seq uint64
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0
		}
		seq = seq*10 + uint64(r-'0')
	}
	return seq
}
