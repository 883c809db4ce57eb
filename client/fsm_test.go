package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testDest = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testTx   = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000a1")
)

type scriptedWallet struct {
	broadcastErr   error
	confirmErr     error
	broadcastCalls int
	confirmCalls   int
	// when set, Broadcast blocks until released
	block chan struct{}
}

func (w *scriptedWallet) Broadcast(ctx context.Context, _ common.Address, _ []byte) (common.Hash, error) {
	w.broadcastCalls++
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return common.Hash{}, ctx.Err()
		}
	}
	if w.broadcastErr != nil {
		return common.Hash{}, w.broadcastErr
	}
	return testTx, nil
}

func (w *scriptedWallet) WaitForConfirmation(_ context.Context, _ common.Hash) error {
	w.confirmCalls++
	return w.confirmErr
}

type scriptedSubmitter struct {
	errs  []error // consumed in order; nil means success
	calls int
}

func (s *scriptedSubmitter) Submit(_ context.Context, _ common.Hash) (*SubmitResponse, error) {
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	if err != nil {
		return nil, err
	}
	return &SubmitResponse{}, nil
}

func newFlow(wallet Wallet, submitter Submitter) *Flow {
	return &Flow{
		Key:            "user-a/claim/project-p",
		Wallet:         wallet,
		Submitter:      submitter,
		To:             testDest,
		Payload:        []byte("castgate:claim:project-p"),
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestFlow_PreconditionFailureMakesNoNetworkCall(t *testing.T) {
	wallet := &scriptedWallet{}
	submitter := &scriptedSubmitter{}
	flow := newFlow(wallet, submitter)
	flow.Precondition = func() error { return errors.New("wallet not connected") }

	outcome := flow.Run(context.Background())
	if outcome.State != StateIdle {
		t.Fatalf("state = %s, want idle", outcome.State)
	}
	var precondErr *PreconditionError
	if !errors.As(outcome.Err, &precondErr) {
		t.Fatalf("err = %v, want PreconditionError", outcome.Err)
	}
	if wallet.broadcastCalls != 0 || submitter.calls != 0 {
		t.Fatal("precondition failure still reached a collaborator")
	}
}

func TestFlow_UserRejectionIsCancelled(t *testing.T) {
	wallet := &scriptedWallet{broadcastErr: ErrUserRejected}
	flow := newFlow(wallet, &scriptedSubmitter{})

	outcome := flow.Run(context.Background())
	if outcome.State != StateDoneError {
		t.Fatalf("state = %s", outcome.State)
	}
	if !outcome.Cancelled {
		t.Fatal("user rejection not reported as cancelled")
	}
}

func TestFlow_BroadcastFailureIsNotCancelled(t *testing.T) {
	wallet := &scriptedWallet{broadcastErr: errors.New("rpc unavailable")}
	flow := newFlow(wallet, &scriptedSubmitter{})

	outcome := flow.Run(context.Background())
	if outcome.State != StateDoneError || outcome.Cancelled {
		t.Fatalf("outcome = %+v, want plain error", outcome)
	}
}

func TestFlow_ConfirmationFailure(t *testing.T) {
	wallet := &scriptedWallet{confirmErr: ErrTxFailed}
	submitter := &scriptedSubmitter{}
	flow := newFlow(wallet, submitter)

	outcome := flow.Run(context.Background())
	if outcome.State != StateDoneError {
		t.Fatalf("state = %s", outcome.State)
	}
	if submitter.calls != 0 {
		t.Fatal("proof submitted for an unconfirmed transaction")
	}
}

func TestFlow_HappyPathTransitionOrder(t *testing.T) {
	flow := newFlow(&scriptedWallet{}, &scriptedSubmitter{})
	var seen []State
	flow.OnTransition = func(s State) { seen = append(seen, s) }

	outcome := flow.Run(context.Background())
	if outcome.State != StateDoneSuccess {
		t.Fatalf("state = %s, err = %v", outcome.State, outcome.Err)
	}
	if outcome.TxHash != testTx {
		t.Fatalf("tx hash = %s", outcome.TxHash.Hex())
	}

	want := []State{StateAwaitingSignature, StateAwaitingConfirmation, StateSubmittingProof, StateDoneSuccess}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestFlow_RetriesOnRetryLater(t *testing.T) {
	submitter := &scriptedSubmitter{errs: []error{ErrRetryLater, ErrRetryLater, nil}}
	flow := newFlow(&scriptedWallet{}, submitter)

	outcome := flow.Run(context.Background())
	if outcome.State != StateDoneSuccess {
		t.Fatalf("state = %s, err = %v", outcome.State, outcome.Err)
	}
	if submitter.calls != 3 {
		t.Fatalf("submit calls = %d, want 3", submitter.calls)
	}
}

func TestFlow_TerminalServerErrorStopsRetrying(t *testing.T) {
	terminal := errors.New("invalid proof")
	submitter := &scriptedSubmitter{errs: []error{ErrRetryLater, terminal}}
	flow := newFlow(&scriptedWallet{}, submitter)

	outcome := flow.Run(context.Background())
	if outcome.State != StateDoneError {
		t.Fatalf("state = %s", outcome.State)
	}
	if !errors.Is(outcome.Err, terminal) {
		t.Fatalf("err = %v", outcome.Err)
	}
	if submitter.calls != 2 {
		t.Fatalf("submit calls = %d, want 2", submitter.calls)
	}
}

func TestFlow_CancelDuringBackoff(t *testing.T) {
	submitter := &scriptedSubmitter{errs: []error{ErrRetryLater, ErrRetryLater, ErrRetryLater, ErrRetryLater}}
	flow := newFlow(&scriptedWallet{}, submitter)
	flow.InitialBackoff = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	outcome := flow.Run(ctx)
	if outcome.State != StateDoneError {
		t.Fatalf("state = %s", outcome.State)
	}
	if !errors.Is(outcome.Err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", outcome.Err)
	}
}

func TestFlow_GuardRefusesConcurrentRun(t *testing.T) {
	guard := NewGuard()
	wallet := &scriptedWallet{block: make(chan struct{})}

	first := newFlow(wallet, &scriptedSubmitter{})
	first.Guard = guard
	done := make(chan *Outcome, 1)
	go func() { done <- first.Run(context.Background()) }()

	// wait for the first flow to take the guard
	for i := 0; i < 100 && first.State() != StateAwaitingSignature; i++ {
		time.Sleep(time.Millisecond)
	}

	second := newFlow(&scriptedWallet{}, &scriptedSubmitter{})
	second.Guard = guard
	outcome := second.Run(context.Background())
	if !errors.Is(outcome.Err, ErrFlowInFlight) {
		t.Fatalf("err = %v, want ErrFlowInFlight", outcome.Err)
	}

	close(wallet.block)
	if outcome := <-done; outcome.State != StateDoneSuccess {
		t.Fatalf("first flow state = %s, err = %v", outcome.State, outcome.Err)
	}

	// the guard is free again after the first flow finished
	third := newFlow(&scriptedWallet{}, &scriptedSubmitter{})
	third.Guard = guard
	if outcome := third.Run(context.Background()); outcome.State != StateDoneSuccess {
		t.Fatalf("third flow refused: %v", outcome.Err)
	}
}
