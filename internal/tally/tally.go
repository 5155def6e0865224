package tally

import (
	"slices"
)

// UnknownPosition groups candidates that arrived without a position.
const UnknownPosition = "Unknown"

type Candidate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`
	Votes    int    `json:"votes"`
	Image    string `json:"image,omitempty"`
}

type VoteUpdate struct {
	CandidateID string `json:"candidateId"`
	Votes       int    `json:"voteCount"`
}

type Medal string

const (
	MedalNone   Medal = ""
	MedalGold   Medal = "gold"
	MedalSilver Medal = "silver"
	MedalBronze Medal = "bronze"
)

type Standing struct {
	Rank  int   `json:"rank"`
	Medal Medal `json:"medal,omitempty"`
	Candidate
}

type PositionGroup struct {
	Position   string      `json:"position"`
	TotalVotes int         `json:"totalVotes"`
	Candidates []Candidate `json:"candidates"`
}

type Summary struct {
	TotalVotes int             `json:"totalVotes"`
	Count      int             `json:"count"`
	Standings  []Standing      `json:"standings"`
	Positions  []PositionGroup `json:"positions"`
}

// Seed builds the baseline list from a snapshot: records without an id are
// dropped, the first record wins for a repeated id, and the result is ranked.
func Seed(records []Candidate) []Candidate {
	out := make([]Candidate, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, c := range records {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		if c.Votes < 0 {
			c.Votes = 0
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	SortByVotes(out)
	return out
}

// ApplySingle returns a new ranked list with u applied. The input is never
// modified. An unknown id, a negative count or an unchanged count is a no-op
// and returns the input with changed=false.
func ApplySingle(list []Candidate, u VoteUpdate) ([]Candidate, bool) {
	if u.Votes < 0 {
		return list, false
	}
	i := slices.IndexFunc(list, func(c Candidate) bool { return c.ID == u.CandidateID })
	if i < 0 || list[i].Votes == u.Votes {
		return list, false
	}

	next := slices.Clone(list)
	next[i].Votes = u.Votes
	SortByVotes(next)
	return next, true
}

// ApplyBulk applies a whole batch in one pass and sorts once. Within the
// batch the last count for an id wins. Ids with no existing record are
// ignored; records are never added.
func ApplyBulk(list []Candidate, updates []VoteUpdate) ([]Candidate, bool) {
	if len(updates) == 0 || len(list) == 0 {
		return list, false
	}

	latest := make(map[string]int, len(updates))
	for _, u := range updates {
		if u.CandidateID == "" || u.Votes < 0 {
			continue
		}
		latest[u.CandidateID] = u.Votes
	}

	var next []Candidate
	for i, c := range list {
		votes, ok := latest[c.ID]
		if !ok || votes == c.Votes {
			continue
		}
		if next == nil {
			next = slices.Clone(list)
		}
		next[i].Votes = votes
	}
	if next == nil {
		return list, false
	}

	SortByVotes(next)
	return next, true
}

// SortByVotes orders by votes descending; ties keep their relative order.
func SortByVotes(list []Candidate) {
	slices.SortStableFunc(list, func(a, b Candidate) int {
		return b.Votes - a.Votes
	})
}

func IDs(list []Candidate) []string {
	ids := make([]string, len(list))
	for i, c := range list {
		ids[i] = c.ID
	}
	return ids
}

func TotalVotes(list []Candidate) int {
	total := 0
	for _, c := range list {
		total += c.Votes
	}
	return total
}

func MedalFor(rank int) Medal {
	switch rank {
	case 1:
		return MedalGold
	case 2:
		return MedalSilver
	case 3:
		return MedalBronze
	default:
		return MedalNone
	}
}

// Summarize assumes list is already ranked (as every reconciler snapshot is).
func Summarize(list []Candidate) Summary {
	s := Summary{
		TotalVotes: TotalVotes(list),
		Count:      len(list),
		Standings:  make([]Standing, len(list)),
		Positions:  []PositionGroup{},
	}

	groupIdx := map[string]int{}
	for i, c := range list {
		rank := i + 1
		s.Standings[i] = Standing{Rank: rank, Medal: MedalFor(rank), Candidate: c}

		pos := c.Position
		if pos == "" {
			pos = UnknownPosition
		}
		gi, ok := groupIdx[pos]
		if !ok {
			gi = len(s.Positions)
			groupIdx[pos] = gi
			s.Positions = append(s.Positions, PositionGroup{Position: pos})
		}
		s.Positions[gi].TotalVotes += c.Votes
		s.Positions[gi].Candidates = append(s.Positions[gi].Candidates, c)
	}
	return s
}
