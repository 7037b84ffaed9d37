package poll

// Snapshot records the identifiers already delivered in one run. It is not
// safe for concurrent use; a run's goroutine owns it.
type Snapshot struct {
	seen map[string]struct{}
}

// NewSnapshot returns a Snapshot pre-populated with seed identifiers.
// Duplicate seeds are recorded once.
func NewSnapshot(seed ...string) *Snapshot {
	s := &Snapshot{seen: make(map[string]struct{}, len(seed))}
	for _, id := range seed {
		s.Add(id)
	}

	return s
}

// Add records id and reports whether it was new.
func (s *Snapshot) Add(id string) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}

	s.seen[id] = struct{}{}

	return true
}

// Len returns the number of recorded identifiers.
func (s *Snapshot) Len() int {
	return len(s.seen)
}
