package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/vote-admin/internal/tally"
)

func TestDecodeUpdates_Shapes(t *testing.T) {
	want := []tally.VoteUpdate{
		{CandidateID: "a1", Votes: 4},
		{CandidateID: "b2", Votes: 11},
	}

	cases := []struct {
		name string
		raw  string
	}{
		{name: "bare list", raw: `[{"candidateId":"a1","voteCount":4},{"candidateId":"b2","voteCount":11}]`},
		{name: "candidates wrapper", raw: `{"candidates":[{"_id":"a1","name":"A","votes":4},{"id":"b2","name":"B","votes":11}]}`},
		{name: "data wrapper", raw: `{"data":[{"_id":"a1","name":"A","votes":4},{"_id":"b2","name":"B","votes":11}]}`},
		{name: "votes wrapper", raw: `{"votes":[{"candidateId":"a1","voteCount":4},{"candidateId":"b2","voteCount":11}]}`},
		{name: "updates wrapper", raw: `{"updates":[{"candidateId":"a1","voteCount":4},{"candidateId":"b2","voteCount":11}]}`},
		{name: "id to count map", raw: `{"a1":4,"b2":11}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, want, DecodeUpdates([]byte(tc.raw)))
		})
	}
}

func TestDecodeUpdates_Unrecognized(t *testing.T) {
	cases := []string{
		`"just a string"`,
		`42`,
		`null`,
		``,
		`{"status":"ok"}`,
		`{"candidates":"nope"}`,
		`not json at all`,
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			got := DecodeUpdates([]byte(raw))
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestDecodeUpdates_SkipsBadEntries(t *testing.T) {
	raw := `[{"candidateId":"a","voteCount":-3},{"voteCount":2},{"candidateId":"b","voteCount":"x"},{"candidateId":"c","voteCount":1.0},{"candidateId":"d","voteCount":2.5}]`
	assert.Equal(t, []tally.VoteUpdate{{CandidateID: "c", Votes: 1}}, DecodeUpdates([]byte(raw)))
}

func TestDecodeUpdates_MatchesSnapshotWrapper(t *testing.T) {
	raw := []byte(`{"data":[{"_id":"a1","name":"A","votes":4}]}`)

	cands := DecodeCandidates(raw)
	require.Len(t, cands, 1)
	assert.Equal(t, []tally.VoteUpdate{{CandidateID: cands[0].ID, Votes: cands[0].Votes}}, DecodeUpdates(raw))
}

func TestToCount_OneBound(t *testing.T) {
	cases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{raw: "2147483647", want: 2147483647, ok: true},
		{raw: "2.147483647e9", want: 2147483647, ok: true},
		{raw: "3000000000", ok: false},
		{raw: "3e9", ok: false},
		{raw: "-1", ok: false},
		{raw: "7.0", want: 7, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := toCount(json.Number(tc.raw))
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestDecodeCandidates_IDAliases(t *testing.T) {
	raw := `[
		{"_id":"m1","name":"A","position":"President","votes":3,"image":"a.png"},
		{"id":"p2","name":"B","votes":7},
		{"_id":"m3","id":"ignored","name":"C","votes":1},
		{"name":"no id","votes":5}
	]`

	got := DecodeCandidates([]byte(raw))
	require.Len(t, got, 3)
	assert.Equal(t, tally.Candidate{ID: "m1", Name: "A", Position: "President", Votes: 3, Image: "a.png"}, got[0])
	assert.Equal(t, "p2", got[1].ID)
	assert.Equal(t, "m3", got[2].ID)
}

func TestDecodeCandidates_Wrapped(t *testing.T) {
	for _, raw := range []string{
		`{"candidates":[{"id":"1","name":"A","votes":2}]}`,
		`{"data":[{"id":"1","name":"A","votes":2}]}`,
	} {
		got := DecodeCandidates([]byte(raw))
		require.Len(t, got, 1)
		assert.Equal(t, 2, got[0].Votes)
	}
	assert.Empty(t, DecodeCandidates([]byte(`{"message":"hi"}`)))
}

// A record known only by its alternate alias must be updated by an update
// keyed with that alias, without spawning a second entry.
func TestAliasedCandidate_SingleUpdate(t *testing.T) {
	list := tally.Seed(DecodeCandidates([]byte(`[{"id":"p2","name":"B","votes":7}]`)))

	single, _, ok := DecodePushMessage([]byte(`{"type":"voteUpdate","id":"p2","voteCount":8}`))
	require.True(t, ok)
	require.NotNil(t, single)

	next, changed := tally.ApplySingle(list, *single)
	require.True(t, changed)
	require.Len(t, next, 1)
	assert.Equal(t, 8, next[0].Votes)
}

func TestDecodePushMessage(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		single, bulk, ok := DecodePushMessage([]byte(`{"candidateId":"x","voteCount":3}`))
		require.True(t, ok)
		assert.Nil(t, bulk)
		assert.Equal(t, &tally.VoteUpdate{CandidateID: "x", Votes: 3}, single)
	})

	t.Run("bulk typed", func(t *testing.T) {
		single, bulk, ok := DecodePushMessage([]byte(`{"type":"bulkVoteUpdate","updates":[{"candidateId":"x","voteCount":3},{"_id":"y","voteCount":4}]}`))
		require.True(t, ok)
		assert.Nil(t, single)
		assert.Equal(t, []tally.VoteUpdate{{CandidateID: "x", Votes: 3}, {CandidateID: "y", Votes: 4}}, bulk)
	})

	t.Run("bulk untyped", func(t *testing.T) {
		_, bulk, ok := DecodePushMessage([]byte(`{"updates":[{"candidateId":"x","voteCount":3}]}`))
		require.True(t, ok)
		assert.Len(t, bulk, 1)
	})

	t.Run("other types ignored", func(t *testing.T) {
		_, _, ok := DecodePushMessage([]byte(`{"type":"welcome"}`))
		assert.False(t, ok)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, ok := DecodePushMessage([]byte(`{{`))
		assert.False(t, ok)
	})

	t.Run("missing count", func(t *testing.T) {
		_, _, ok := DecodePushMessage([]byte(`{"candidateId":"x"}`))
		assert.False(t, ok)
	})
}
