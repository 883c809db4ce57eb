package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingSignature
	StateAwaitingConfirmation
	StateSubmittingProof
	StateDoneSuccess
	StateDoneError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingSignature:
		return "awaiting_signature"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateSubmittingProof:
		return "submitting_proof"
	case StateDoneSuccess:
		return "done_success"
	case StateDoneError:
		return "done_error"
	}
	return "unknown"
}

// Sentinels the Wallet implementation reports.
var (
	ErrUserRejected = errors.New("user rejected signature")
	ErrTxFailed     = errors.New("transaction failed on chain")
)

// ErrRetryLater is the submitter's translation of the server's
// NOT_CONFIRMED signal: re-submit the same proof after a backoff.
var ErrRetryLater = errors.New("proof not yet confirmed, retry later")

// ErrFlowInFlight refuses a second concurrent flow for the same key.
// This is a soft client-side guard; the server's compare-and-set is the
// real single-writer guarantee.
var ErrFlowInFlight = errors.New("a flow for this action is already running")

// PreconditionError re-enters Idle with a displayable reason and makes no
// network call.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// Wallet is the broadcast layer. Broadcast sends a zero-value transaction
// carrying data to the destination and returns its hash, or
// ErrUserRejected when signing is refused. WaitForConfirmation blocks
// until the transaction is mined, returning ErrTxFailed on revert.
type Wallet interface {
	Broadcast(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitForConfirmation(ctx context.Context, txHash common.Hash) error
}

// SubmitResponse mirrors the server's success shape.
type SubmitResponse struct {
	AlreadyCompleted bool
	Result           json.RawMessage
}

// Submitter presents the proof to the action endpoint. Terminal server
// errors come back as-is; the retry-later signal must be ErrRetryLater.
type Submitter interface {
	Submit(ctx context.Context, txHash common.Hash) (*SubmitResponse, error)
}

// Guard tracks in-flight flows per action key.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]bool)}
}

func (g *Guard) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[key] {
		return false
	}
	g.inFlight[key] = true
	return true
}

func (g *Guard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}

// Outcome is the terminal result of one flow invocation.
type Outcome struct {
	State     State
	TxHash    common.Hash
	Response  *SubmitResponse
	Err       error
	Cancelled bool
}

// Flow drives one gated action end to end: wallet prompt, broadcast,
// confirmation wait, proof submission with backoff, terminal result.
// A Flow is single-use; start a fresh one for a new attempt.
type Flow struct {
	Key          string
	Wallet       Wallet
	Submitter    Submitter
	To           common.Address
	Payload      []byte
	Precondition func() error
	Guard        *Guard

	// backoff for retry-later responses; defaults applied in Run
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	mu    sync.Mutex
	state State
	// notified on every transition; optional
	OnTransition func(State)
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) transition(next State) {
	f.mu.Lock()
	f.state = next
	f.mu.Unlock()
	if f.OnTransition != nil {
		f.OnTransition(next)
	}
}

// Run executes the flow. It blocks until a terminal state; cancel ctx to
// abandon at any point (no server-side cleanup is needed before the proof
// submission succeeds, since the server writes no pending state).
func (f *Flow) Run(ctx context.Context) *Outcome {
	if f.Guard != nil {
		if !f.Guard.acquire(f.Key) {
			return &Outcome{State: StateIdle, Err: ErrFlowInFlight}
		}
		defer f.Guard.release(f.Key)
	}

	if f.Precondition != nil {
		if err := f.Precondition(); err != nil {
			f.transition(StateIdle)
			return &Outcome{State: StateIdle, Err: &PreconditionError{Reason: err.Error()}}
		}
	}

	f.transition(StateAwaitingSignature)
	txHash, err := f.Wallet.Broadcast(ctx, f.To, f.Payload)
	if err != nil {
		f.transition(StateDoneError)
		if errors.Is(err, ErrUserRejected) {
			return &Outcome{State: StateDoneError, Err: err, Cancelled: true}
		}
		return &Outcome{State: StateDoneError, Err: err}
	}

	f.transition(StateAwaitingConfirmation)
	if err := f.Wallet.WaitForConfirmation(ctx, txHash); err != nil {
		f.transition(StateDoneError)
		return &Outcome{State: StateDoneError, TxHash: txHash, Err: err}
	}

	// proof is only ever submitted for a confirmed transaction
	f.transition(StateSubmittingProof)
	backoff := f.InitialBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	maxBackoff := f.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	for {
		resp, err := f.Submitter.Submit(ctx, txHash)
		if err == nil {
			f.transition(StateDoneSuccess)
			return &Outcome{State: StateDoneSuccess, TxHash: txHash, Response: resp}
		}
		if !errors.Is(err, ErrRetryLater) {
			f.transition(StateDoneError)
			return &Outcome{State: StateDoneError, TxHash: txHash, Err: err}
		}

		select {
		case <-ctx.Done():
			f.transition(StateDoneError)
			return &Outcome{State: StateDoneError, TxHash: txHash, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
