package conversation

import "fmt"

// State is the canonical container for the chat history of one session.
// Version increases by one for every applied mutation.
type State struct {
	Entries History
	Version int64
}

func NewState() *State {
	return &State{}
}

// Apply applies a single mutation and increments the version.
func (s *State) Apply(m Mutation) error {
	if s == nil {
		return fmt.Errorf("conversation state is nil")
	}
	if m == nil {
		return fmt.Errorf("mutation is nil")
	}
	if err := m.Apply(s); err != nil {
		return fmt.Errorf("mutation %s failed: %w", m.Name(), err)
	}
	s.Version++
	return nil
}

// ApplyAll applies multiple mutations sequentially.
func (s *State) ApplyAll(muts ...Mutation) error {
	for _, m := range muts {
		if err := s.Apply(m); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a copy of the entries that later mutations cannot touch.
func (s *State) Snapshot() History {
	if s == nil {
		return nil
	}
	return s.Entries.Clone()
}
