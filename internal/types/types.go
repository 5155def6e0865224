package types

import "github.com/DoyleJ11/vote-admin/internal/tally"

const (
	MsgStateSnapshot = "StateSnapshot"
	MsgUnauthorized  = "Unauthorized"
	MsgError         = "Error"

	MsgGetState = "GetState"
)

type ClientMessage struct {
	Type string `json:"type"`
}

type ServerMessage struct {
	Type    string         `json:"type"` // "StateSnapshot" | "Unauthorized" | "Error"
	Version int            `json:"version,omitempty"`
	Seeded  bool           `json:"seeded,omitempty"`
	Summary *tally.Summary `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Snapshot wraps a ranked list for the browser.
func Snapshot(version int, seeded bool, list []tally.Candidate) ServerMessage {
	s := tally.Summarize(list)
	return ServerMessage{Type: MsgStateSnapshot, Version: version, Seeded: seeded, Summary: &s}
}
