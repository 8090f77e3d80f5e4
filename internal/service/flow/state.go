// Package flow implements the survey call-flow state machine.
package flow

import (
	"fmt"

	"voice-survey-service/internal/models"
)

// State is a participant's survey progress. It is derived from the number
// of stored answers and never persisted.
type State int

const (
	// StateNew - no participant record exists yet.
	StateNew State = iota
	// StateInProgress - fewer answers than questions.
	StateInProgress
	// StateComplete - every question answered. Terminal.
	StateComplete
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateComplete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if no further answers are accepted.
func (s State) IsTerminal() bool {
	return s == StateComplete
}

// StateOf derives the state of p for a survey of total questions.
// A nil participant is NEW.
func StateOf(p *models.Participant, total int) State {
	if p == nil {
		return StateNew
	}
	if p.Answered() >= total {
		return StateComplete
	}
	return StateInProgress
}
