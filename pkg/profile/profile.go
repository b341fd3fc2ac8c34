package profile

import (
	"strings"
	"sync/atomic"
	"time"
)

// Snapshot is one immutable version of the profile.
type Snapshot struct {
	// Persona describes who the assistant is.
	Persona string `json:"persona"`

	// Knowledge is free-form reference text.
	Knowledge string `json:"knowledge"`

	// Rule is the behavioural instruction.
	Rule string `json:"rule"`

	// Version increases by one on every swap.
	Version uint64 `json:"version"`

	// LoadedAt is when this snapshot was installed.
	LoadedAt time.Time `json:"loaded_at"`
}

// SystemContext renders the snapshot as the upstream system instruction.
// Empty fields are left out; an empty profile yields "".
func (s Snapshot) SystemContext() string {
	var lines []string
	if s.Persona != "" {
		lines = append(lines, "Identity: "+s.Persona)
	}
	if s.Knowledge != "" {
		lines = append(lines, "Knowledge: "+s.Knowledge)
	}
	if s.Rule != "" {
		lines = append(lines, "Rule: "+s.Rule)
	}
	return strings.Join(lines, "\n")
}

// Store publishes the current snapshot. It is safe for concurrent use.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding persona, knowledge and rule as version 1.
func NewStore(persona, knowledge, rule string) *Store {
	s := &Store{}
	s.current.Store(&Snapshot{
		Persona:   persona,
		Knowledge: knowledge,
		Rule:      rule,
		Version:   1,
		LoadedAt:  time.Now(),
	})
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() Snapshot {
	return *s.current.Load()
}

// Swap replaces the whole profile and returns the installed snapshot.
func (s *Store) Swap(persona, knowledge, rule string) Snapshot {
	return s.Update(func(Snapshot) Snapshot {
		return Snapshot{Persona: persona, Knowledge: knowledge, Rule: rule}
	})
}

// Update applies fn to the current snapshot and installs the result with
// the next version. fn may run more than once under contention and must not
// have side effects.
func (s *Store) Update(fn func(Snapshot) Snapshot) Snapshot {
	for {
		old := s.current.Load()
		next := fn(*old)
		next.Version = old.Version + 1
		next.LoadedAt = time.Now()
		if s.current.CompareAndSwap(old, &next) {
			return next
		}
	}
}
