// Package pairing binds exactly one remote identity to the desktop with a
// short numeric code handed over out of band.
package pairing

import (
	"fmt"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
)

// State is the explicit pairing state derived from the settings store
type State int

const (
	Unpaired State = iota
	CodeIssued
	Paired
)

func (s State) String() string {
	switch s {
	case Unpaired:
		return "unpaired"
	case CodeIssued:
		return "code_issued"
	case Paired:
		return "paired"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is the pairing-relevant content of the settings store at one point
type Snapshot struct {
	Bound models.Identity
	Code  string
}

// State resolves the tagged state. A bound identity wins over a stale code.
func (s Snapshot) State() State {
	switch {
	case s.Bound != "":
		return Paired
	case s.Code != "":
		return CodeIssued
	default:
		return Unpaired
	}
}

// Outcome is the result of evaluating one pairing request
type Outcome int

const (
	// OutcomeMatched binds the requester and consumes the code
	OutcomeMatched Outcome = iota
	// OutcomeMismatch keeps the stored code for another attempt
	OutcomeMismatch
	// OutcomeAlreadyPaired means the requester is the bound identity already
	OutcomeAlreadyPaired
	// OutcomeBoundElsewhere means another identity holds the binding
	OutcomeBoundElsewhere
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeAlreadyPaired:
		return "already_paired"
	case OutcomeBoundElsewhere:
		return "bound_elsewhere"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Feedback returns the event sent back to the requester, or "" for silence
func (o Outcome) Feedback() string {
	switch o {
	case OutcomeMatched:
		return models.EventPairingSuccess
	case OutcomeMismatch:
		return models.EventPairingFailed
	case OutcomeAlreadyPaired:
		return models.EventAlreadyPaired
	default:
		return ""
	}
}

// Err maps a rejected outcome to its sentinel; OutcomeMatched yields nil
func (o Outcome) Err() error {
	switch o {
	case OutcomeMismatch:
		return models.ErrPairingMismatch
	case OutcomeAlreadyPaired:
		return models.ErrAlreadyPaired
	case OutcomeBoundElsewhere:
		return models.ErrBoundElsewhere
	default:
		return nil
	}
}

// Decide evaluates a pairing request against a snapshot without side effects.
// An empty code never matches, so a cleared code cannot be replayed.
func Decide(s Snapshot, requester models.Identity, code string) Outcome {
	switch s.State() {
	case Paired:
		if s.Bound == requester {
			return OutcomeAlreadyPaired
		}
		return OutcomeBoundElsewhere
	case CodeIssued:
		if code != "" && code == s.Code {
			return OutcomeMatched
		}
		return OutcomeMismatch
	default:
		return OutcomeMismatch
	}
}
