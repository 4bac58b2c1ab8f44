package models

import (
	"fmt"
	"time"
)

// State is the validation state of an ad.
type State string

const (
	StateReview   State = "review"
	StateAccepted State = "accepted"
	StateRejected State = "rejected"
)

// Terminal reports whether the state allows no further transitions.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateRejected
}

// ParseState parses a stored state string.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateReview, StateAccepted, StateRejected:
		return State(s), nil
	}
	return "", fmt.Errorf("unknown ad state: %q", s)
}

// ValidTransition reports whether an ad may move from one state to another.
// The only legal transitions are review -> accepted and review -> rejected.
func ValidTransition(from, to State) bool {
	return from == StateReview && to.Terminal()
}

// Ad represents a vehicle classified ad
type Ad struct {
	ID          string
	Description string
	Email       string
	ImageKey    string
	ImageURL    string
	State       State
	Category    *string // non-nil iff State == StateAccepted
	CreatedAt   time.Time
	ValidatedAt *time.Time
}
