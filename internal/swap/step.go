// Package swap runs hash-time-locked swaps between two Chia-family chains,
// or between a Chia-family chain and an EVM chain, one goroutine per trade.
package swap

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a step has no successor for an
// outcome.
var ErrIllegalTransition = errors.New("illegal step transition")

// Step is the persisted position of a trade. Values are stored as integers
// and must not be renumbered.
type Step int

const (
	StepFundingLegA Step = iota // waiting for the buyer's deposit
	StepFundingLegB             // waiting for the seller's deposit
	StepResolving               // claiming or cancelling
	StepCompleted
	StepCancelled
)

func (s Step) String() string {
	switch s {
	case StepFundingLegA:
		return "funding_leg_a"
	case StepFundingLegB:
		return "funding_leg_b"
	case StepResolving:
		return "resolving"
	case StepCompleted:
		return "completed"
	case StepCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s >= StepFundingLegA && s <= StepCancelled
}

// Terminal reports whether a trade at s has nothing left to do.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepCancelled
}

// Outcome is how a step ended.
type Outcome int

const (
	OutcomeProceed Outcome = iota
	OutcomeCancel
)

func (o Outcome) String() string {
	if o == OutcomeCancel {
		return "cancel"
	}
	return "proceed"
}

// Next returns the step after s. Funding steps advance whatever their
// outcome; the cancel decision travels with the run into resolution.
func (s Step) Next(o Outcome) (Step, error) {
	switch s {
	case StepFundingLegA:
		return StepFundingLegB, nil
	case StepFundingLegB:
		return StepResolving, nil
	case StepResolving:
		if o == OutcomeCancel {
			return StepCancelled, nil
		}
		return StepCompleted, nil
	}
	return s, fmt.Errorf("%w: %s has no successor", ErrIllegalTransition, s)
}

func outcomeOf(cancel bool) Outcome {
	if cancel {
		return OutcomeCancel
	}
	return OutcomeProceed
}
