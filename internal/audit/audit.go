package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionLogin           Action = "login"
	ActionCandidateCreate Action = "candidate.create"
	ActionVotesVerify     Action = "votes.verify"
	ActionVotesReset      Action = "votes.reset"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

var ErrInvalidEntry = errors.New("invalid audit entry")

// Entry is one admin action against the backend.
type Entry struct {
	ID      uuid.UUID `json:"id"`
	Action  Action    `json:"action"`
	Outcome Outcome   `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Store records entries and lists the most recent first.
type Store interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// NewEntry stamps an entry with a fresh id and the current time. A failure's
// error text is appended to detail.
func NewEntry(action Action, err error, detail string) Entry {
	e := Entry{
		ID:      uuid.New(),
		Action:  action,
		Outcome: OutcomeSuccess,
		Detail:  detail,
		At:      time.Now().UTC(),
	}
	if err != nil {
		e.Outcome = OutcomeFailure
		if e.Detail == "" {
			e.Detail = err.Error()
		} else {
			e.Detail += ": " + err.Error()
		}
	}
	return e
}

func validate(e Entry) error {
	if e.ID == uuid.Nil || e.Action == "" || e.At.IsZero() {
		return ErrInvalidEntry
	}
	return nil
}
