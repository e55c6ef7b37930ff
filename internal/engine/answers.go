package engine

// Snapshot is a point-in-time copy of a taker's answers, keyed by question id.
type Snapshot map[string]Value

// Get returns the answer for id, or an unset value.
func (s Snapshot) Get(id string) Value {
	return s[id]
}

// Answered counts the set answers.
func (s Snapshot) Answered() int {
	n := 0
	for _, v := range s {
		if v.IsSet() {
			n++
		}
	}
	return n
}

// AnswerStore holds the taker's current answers. Kind validation is left to
// the caller.
type AnswerStore struct {
	answers map[string]Value
	frozen  bool
}

// NewAnswerStore returns an empty, writable store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[string]Value)}
}

// Set overwrites the answer for id.
func (s *AnswerStore) Set(id string, v Value) error {
	if s.frozen {
		return ErrNotInProgress
	}
	s.answers[id] = v
	return nil
}

// Get returns the current answer for id, or an unset value.
func (s *AnswerStore) Get(id string) Value {
	return s.answers[id]
}

// Snapshot copies the full mapping.
func (s *AnswerStore) Snapshot() Snapshot {
	out := make(Snapshot, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Freeze rejects all further writes.
func (s *AnswerStore) Freeze() { s.frozen = true }

// Frozen reports whether writes are rejected.
func (s *AnswerStore) Frozen() bool { return s.frozen }
