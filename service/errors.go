package service

import (
	"errors"
	"fmt"
)

// ErrNotYetConfirmed is a scheduling signal, not a failure: the proof
// transaction exists but is not mined deep enough yet. The client should
// retry the same submission after a backoff.
var ErrNotYetConfirmed = errors.New("transaction not yet confirmed")

// ErrConflict means the proof transaction is already attached to a
// different eligibility record. Terminal; indicates a client bug or an
// attempted reuse.
var ErrConflict = errors.New("proof transaction already consumed by another action")

// ValidationError rejects a request before any chain read happens.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// InvalidProofError means the transaction is mined but does not satisfy
// the proof constraints. Terminal for that hash; the user must send a new
// transaction.
type InvalidProofError struct {
	Reason string
}

func (e *InvalidProofError) Error() string {
	return fmt.Sprintf("invalid proof: %s", e.Reason)
}
