package feemarket

import "errors"

// Fault classifies who is at fault when a transaction is rejected before
// execution. Users fix and resubmit stale or underfunded transactions at no
// cost to the sequencer; a sequencer that includes transactions it should
// have filtered pays for the wasted pre-checks, and one that includes
// statelessly invalid transactions is slashed.
type Fault int

const (
	// FaultNone: a clean, user-correctable rejection.
	FaultNone Fault = iota

	// FaultSequencerPenalty: stateful-invalid but plausible; the sequencer
	// pays a small fixed penalty for the wasted pre-checks.
	FaultSequencerPenalty

	// FaultSequencerSlash: invalid regardless of state; the sequencer could
	// and should have rejected it without any state access.
	FaultSequencerSlash
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultSequencerPenalty:
		return "sequencer_penalty"
	case FaultSequencerSlash:
		return "sequencer_slash"
	default:
		return "unknown"
	}
}

// ClassifyRejection maps a reservation error to the party at fault.
func ClassifyRejection(err error) Fault {
	switch {
	case errors.Is(err, ErrWrongChainID):
		return FaultSequencerSlash
	case errors.Is(err, ErrInsufficientFundsForPreChecks):
		return FaultSequencerPenalty
	default:
		return FaultNone
	}
}
