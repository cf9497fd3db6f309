package feed

const DefaultStoreCap = 100

// Store keeps the most recent reconciled entries newest-first, at most one
// entry per document. It is not safe for concurrent use; the Coordinator
// owns it under a single lock.
type Store struct {
	capacity int
	entries  []Envelope
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultStoreCap
	}
	return &Store{capacity: capacity}
}

func (s *Store) Upsert(env Envelope) {
	s.removeDoc(env.Ref.Doc)
	s.entries = append([]Envelope{env}, s.entries...)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[:s.capacity]
	}
}

func (s *Store) RemoveDoc(doc string) bool {
	return s.removeDoc(doc)
}

func (s *Store) removeDoc(doc string) bool {
	if doc == "" {
		return false
	}
	for i, entry := range s.entries {
		if entry.Ref.Doc == doc {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) Get(doc string) (Envelope, bool) {
	for _, entry := range s.entries {
		if entry.Ref.Doc == doc {
			return entry, true
		}
	}
	return Envelope{}, false
}

func (s *Store) Len() int {
	return len(s.entries)
}

func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) List() []Envelope {
	return append([]Envelope(nil), s.entries...)
}

func (s *Store) Snapshot() []Envelope {
	return append([]Envelope(nil), s.entries...)
}

func (s *Store) Restore(snapshot []Envelope) {
	s.entries = append([]Envelope(nil), snapshot...)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[:s.capacity]
	}
}
