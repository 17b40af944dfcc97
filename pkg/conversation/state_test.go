package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestMergeConcatenatesFragments(t *testing.T) {
	var h History
	h = Merge(h, NewFragment("r1", "Hel", false, t0))
	h = Merge(h, NewFragment("r1", "lo", false, t0.Add(time.Second)))
	h = Merge(h, NewFragment("r1", "!", true, t0.Add(2*time.Second)))

	require.Len(t, h, 1)
	assert.Equal(t, "Hello!", h[0].Text)
	assert.True(t, h[0].Complete)
	assert.Equal(t, t0, h[0].Timestamp)
}

func TestMergeCompleteFollowsLastFragment(t *testing.T) {
	h := Merge(nil, NewFragment("r1", "a", true, t0))
	h = Merge(h, NewFragment("r1", "b", false, t0))
	assert.False(t, h[0].Complete)
	assert.Equal(t, "ab", h[0].Text)
}

func TestMergeKeepsPositionOfExistingEntry(t *testing.T) {
	h := History{
		NewUserEntry("u1", "question", t0),
		NewFragment("r1", "part", false, t0),
		NewUserEntry("u2", "another", t0),
	}
	h = Merge(h, NewFragment("r1", "ial", true, t0))

	require.Len(t, h, 3)
	assert.Equal(t, []string{"u1", "r1", "u2"}, ids(h))
	assert.Equal(t, "partial", h[1].Text)
}

func TestMergeDoesNotModifyInput(t *testing.T) {
	h := History{NewFragment("r1", "a", false, t0)}
	merged := Merge(h, NewFragment("r1", "b", true, t0))

	assert.Equal(t, "a", h[0].Text)
	assert.False(t, h[0].Complete)
	assert.Equal(t, "ab", merged[0].Text)
}

func TestMergeNeverDuplicatesIDs(t *testing.T) {
	var h History
	for _, id := range []string{"a", "b", "a", "c", "b", "a"} {
		h = Merge(h, NewFragment(id, "x", false, t0))
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids(h))
	assert.Equal(t, "xxx", h[0].Text)
}

func TestFromSnapshotCollapsesDuplicates(t *testing.T) {
	h := FromSnapshot([]Entry{
		NewUserEntry("a", "first", t0),
		NewFragment("b", "reply", true, t0),
		NewUserEntry("a", "second", t0),
	})
	require.Len(t, h, 2)
	assert.Equal(t, []string{"a", "b"}, ids(h))
	assert.Equal(t, "second", h[0].Text)
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	h, err := Append(nil, NewUserEntry("m1", "hi", t0))
	require.NoError(t, err)

	_, err = Append(h, NewUserEntry("m1", "again", t0))
	assert.True(t, errors.Is(err, ErrDuplicateID))
	assert.Len(t, h, 1)
}

func TestStateAppliesMutationsAndCountsVersions(t *testing.T) {
	s := NewState()
	require.NoError(t, s.ApplyAll(
		MutateAppend(NewUserEntry("m1", "hi", t0)),
		MutateMerge(NewFragment("r1", "hel", false, t0)),
		MutateMerge(NewFragment("r1", "lo", true, t0)),
	))
	assert.Equal(t, int64(3), s.Version)
	assert.Equal(t, []string{"m1", "r1"}, ids(s.Entries))

	err := s.Apply(MutateAppend(NewUserEntry("m1", "dup", t0)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateID))
	assert.Equal(t, int64(3), s.Version)

	require.NoError(t, s.Apply(MutateReplace([]Entry{NewFragment("z", "snap", true, t0)})))
	assert.Equal(t, []string{"z"}, ids(s.Entries))
}

func TestStateSnapshotIsIndependent(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Apply(MutateMerge(NewFragment("r1", "a", false, t0))))
	snap := s.Snapshot()
	require.NoError(t, s.Apply(MutateMerge(NewFragment("r1", "b", false, t0))))

	assert.Equal(t, "a", snap[0].Text)
	assert.Equal(t, "ab", s.Entries[0].Text)
}

func TestStateRejectsNilMutation(t *testing.T) {
	require.Error(t, NewState().Apply(nil))
}

func ids(h History) []string {
	var ret []string
	for _, e := range h {
		ret = append(ret, e.ID)
	}
	return ret
}
