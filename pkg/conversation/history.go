package conversation

import "errors"

var ErrDuplicateID = errors.New("entry id already in history")

// History is ordered by the arrival of each entry's first fragment. No two
// entries share an ID.
type History []Entry

func (h History) Index(id string) int {
	for i := range h {
		if h[i].ID == id {
			return i
		}
	}
	return -1
}

func (h History) Get(id string) (Entry, bool) {
	if i := h.Index(id); i >= 0 {
		return h[i], true
	}
	return Entry{}, false
}

func (h History) Clone() History {
	if h == nil {
		return nil
	}
	ret := make(History, len(h))
	copy(ret, h)
	return ret
}

// Merge returns a new history with e folded in. If an entry with e.ID exists,
// e.Text is appended to its text in place and its Complete flag takes the
// value of e.Complete. Otherwise e is appended as the last entry.
// h is not modified.
func Merge(h History, e Entry) History {
	ret := h.Clone()
	if i := ret.Index(e.ID); i >= 0 {
		ret[i].Text += e.Text
		ret[i].Complete = e.Complete
		return ret
	}
	return append(ret, e)
}

// FromSnapshot builds a history from server-delivered entries. A repeated id
// keeps the position of its first occurrence and the content of its last.
func FromSnapshot(entries []Entry) History {
	ret := make(History, 0, len(entries))
	positions := make(map[string]int, len(entries))
	for _, e := range entries {
		if i, ok := positions[e.ID]; ok {
			ret[i] = e
			continue
		}
		positions[e.ID] = len(ret)
		ret = append(ret, e)
	}
	return ret
}

// Append adds a fully formed local entry. Unlike Merge it refuses ids that are
// already present.
func Append(h History, e Entry) (History, error) {
	if h.Index(e.ID) >= 0 {
		return h, ErrDuplicateID
	}
	return append(h.Clone(), e), nil
}
