package conversation

import "fmt"

// Mutation represents a deterministic change to the chat history.
type Mutation interface {
	Apply(s *State) error
	Name() string
}

type mergeMutation struct {
	entry Entry
}

// MutateMerge folds a fragment (or a new entry) into the history.
func MutateMerge(e Entry) Mutation {
	return mergeMutation{entry: e}
}

func (m mergeMutation) Apply(s *State) error {
	if m.entry.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	s.Entries = Merge(s.Entries, m.entry)
	return nil
}

func (m mergeMutation) Name() string { return "merge" }

type replaceMutation struct {
	entries []Entry
}

// MutateReplace discards the history in favour of a server snapshot.
func MutateReplace(entries []Entry) Mutation {
	return replaceMutation{entries: entries}
}

func (m replaceMutation) Apply(s *State) error {
	s.Entries = FromSnapshot(m.entries)
	return nil
}

func (m replaceMutation) Name() string { return "replace" }

type appendMutation struct {
	entry Entry
}

// MutateAppend adds a local entry, failing on a duplicate id.
func MutateAppend(e Entry) Mutation {
	return appendMutation{entry: e}
}

func (m appendMutation) Apply(s *State) error {
	if m.entry.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	entries, err := Append(s.Entries, m.entry)
	if err != nil {
		return fmt.Errorf("append %s: %w", m.entry.ID, err)
	}
	s.Entries = entries
	return nil
}

func (m appendMutation) Name() string { return "append" }
