package backend

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/DoyleJ11/vote-admin/internal/tally"
)

// wireCandidate is a candidate record as the backend sends it. The id may
// arrive as either `_id` or `id`; `_id` wins.
type wireCandidate struct {
	MongoID  string      `json:"_id"`
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Position string      `json:"position"`
	Votes    json.Number `json:"votes"`
	Image    string      `json:"image"`
}

func (w wireCandidate) canonical() (tally.Candidate, bool) {
	id := firstNonEmpty(w.MongoID, w.ID)
	if id == "" {
		return tally.Candidate{}, false
	}
	votes, ok := toCount(w.Votes)
	if !ok {
		votes = 0
	}
	return tally.Candidate{
		ID:       id,
		Name:     w.Name,
		Position: w.Position,
		Votes:    votes,
		Image:    w.Image,
	}, true
}

// wireUpdate covers both push/poll update records and full candidate records
// appearing in an update list.
type wireUpdate struct {
	CandidateID string      `json:"candidateId"`
	MongoID     string      `json:"_id"`
	ID          string      `json:"id"`
	VoteCount   json.Number `json:"voteCount"`
	Votes       json.Number `json:"votes"`
	Count       json.Number `json:"count"`
}

func (w wireUpdate) canonical() (tally.VoteUpdate, bool) {
	id := firstNonEmpty(w.CandidateID, w.MongoID, w.ID)
	if id == "" {
		return tally.VoteUpdate{}, false
	}
	for _, n := range []json.Number{w.VoteCount, w.Votes, w.Count} {
		if n == "" {
			continue
		}
		votes, ok := toCount(n)
		if !ok {
			return tally.VoteUpdate{}, false
		}
		return tally.VoteUpdate{CandidateID: id, Votes: votes}, true
	}
	return tally.VoteUpdate{}, false
}

// DecodeCandidates accepts a bare list or a list wrapped under `candidates`
// or `data`. Anything else decodes to an empty list.
func DecodeCandidates(raw []byte) []tally.Candidate {
	list, ok := unwrapList(raw, "candidates", "data")
	if !ok {
		return []tally.Candidate{}
	}

	out := make([]tally.Candidate, 0, len(list))
	for _, item := range list {
		var w wireCandidate
		if err := decodeWithNumbers(item, &w); err != nil {
			continue
		}
		if c, ok := w.canonical(); ok {
			out = append(out, c)
		}
	}
	return out
}

// DecodeUpdates normalizes every payload shape the poll endpoint is known to
// return into one batch:
//
//	[{candidateId, voteCount}, ...]      bare list
//	{"candidates": [...]}                wrapped candidate records
//	{"data": [...]}                      wrapped candidate records
//	{"votes": [...]}                     wrapped updates
//	{"updates": [...]}                   wrapped updates
//	{"<id>": <count>, ...}               plain id -> count mapping
//
// Unrecognized payloads yield an empty batch.
func DecodeUpdates(raw []byte) []tally.VoteUpdate {
	if list, ok := unwrapList(raw, "candidates", "data", "votes", "updates"); ok {
		out := make([]tally.VoteUpdate, 0, len(list))
		for _, item := range list {
			var w wireUpdate
			if err := decodeWithNumbers(item, &w); err != nil {
				continue
			}
			if u, ok := w.canonical(); ok {
				out = append(out, u)
			}
		}
		return out
	}

	if out, ok := decodeCountMap(raw); ok {
		return out
	}
	return []tally.VoteUpdate{}
}

// DecodePushMessage decodes one push-channel frame. Bulk frames carry an
// `updates` list; anything else is treated as a single update.
func DecodePushMessage(raw []byte) (single *tally.VoteUpdate, bulk []tally.VoteUpdate, ok bool) {
	var env struct {
		Type    string          `json:"type"`
		Updates json.RawMessage `json:"updates"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, false
	}

	if env.Type == "bulkVoteUpdate" || (env.Type == "" && len(env.Updates) > 0) {
		var items []json.RawMessage
		if err := json.Unmarshal(env.Updates, &items); err != nil {
			return nil, nil, false
		}
		bulk = make([]tally.VoteUpdate, 0, len(items))
		for _, item := range items {
			var w wireUpdate
			if err := decodeWithNumbers(item, &w); err != nil {
				continue
			}
			if u, ok := w.canonical(); ok {
				bulk = append(bulk, u)
			}
		}
		return nil, bulk, true
	}

	if env.Type != "" && env.Type != "voteUpdate" {
		return nil, nil, false
	}
	var w wireUpdate
	if err := decodeWithNumbers(raw, &w); err != nil {
		return nil, nil, false
	}
	u, ok := w.canonical()
	if !ok {
		return nil, nil, false
	}
	return &u, nil, true
}

// unwrapList returns the elements of raw when it is a JSON array, or of the
// first listed key holding an array when raw is an object.
func unwrapList(raw []byte, keys ...string) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false
	}

	switch raw[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, false
		}
		return list, true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false
		}
		for _, k := range keys {
			v, ok := obj[k]
			if !ok {
				continue
			}
			var list []json.RawMessage
			if err := json.Unmarshal(v, &list); err == nil {
				return list, true
			}
		}
	}
	return nil, false
}

// decodeCountMap reads {"id": count, ...} keeping key order. Every value must
// be a number, otherwise the payload is not a count map.
func decodeCountMap(raw []byte) ([]tally.VoteUpdate, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}

	out := []tally.VoteUpdate{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, _ := keyTok.(string)

		valTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		n, isNum := valTok.(json.Number)
		if !isNum {
			return nil, false
		}
		votes, ok := toCount(n)
		if !ok || key == "" {
			continue
		}
		out = append(out, tally.VoteUpdate{CandidateID: key, Votes: votes})
	}
	return out, true
}

func decodeWithNumbers(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// maxCount bounds a vote count however it was serialized.
const maxCount = math.MaxInt32

// toCount accepts integral, non-negative numbers up to maxCount. Some
// backends serialize counts as floats ("3.0").
func toCount(n json.Number) (int, bool) {
	if n == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		if i < 0 || i > maxCount {
			return 0, false
		}
		return int(i), true
	}
	f, err := n.Float64()
	if err != nil || f < 0 || f != math.Trunc(f) || f > maxCount {
		return 0, false
	}
	return int(f), true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
