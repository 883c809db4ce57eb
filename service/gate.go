package service

import (
	"context"
	"regexp"

	"github.com/castgate/chain"
	"github.com/castgate/model"
	"github.com/castgate/repository"
	"github.com/ethereum/go-ethereum/common"
)

// Verifier abstracts chain.Verifier for the processors.
type Verifier interface {
	Verify(ctx context.Context, txHash common.Hash, expectedRecipient, expectedSender common.Address, matcher chain.PayloadMatcher) (*chain.Verification, error)
}

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// gate is the protocol shared by all three action processors: check the
// eligibility record, verify the proof transaction against the chain, then
// run the atomic eligible -> completed transition. Verification happens
// before and outside the store transaction so no lock is held across
// network I/O.
type gate struct {
	eligibility *repository.EligibilityRepository
	verifier    Verifier
	treasury    common.Address
}

// submit returns the (possibly pre-existing) completed record and whether
// it was completed by an earlier call. The caller runs its domain side
// effect only when alreadyCompleted is false.
func (g *gate) submit(ctx context.Context, userID string, actionType model.ActionType, scopeKey, txHash, claimedSender string, matcher chain.PayloadMatcher, resultPayload string) (*model.EligibilityRecord, bool, error) {
	rec, err := g.eligibility.CheckEligibility(ctx, userID, actionType, scopeKey)
	if err != nil {
		return nil, false, err
	}
	if rec.State == model.StateCompleted {
		return rec, true, nil
	}

	if !txHashPattern.MatchString(txHash) {
		return nil, false, &ValidationError{Msg: "txHash must be a 0x-prefixed 32-byte hex string"}
	}
	// canonical spelling: the hash uniqueness index must see one value
	// per transaction regardless of submitted hex casing
	txHash = common.HexToHash(txHash).Hex()
	var expectedSender common.Address
	if claimedSender != "" {
		if !common.IsHexAddress(claimedSender) {
			return nil, false, &ValidationError{Msg: "claimedSender is not a valid address"}
		}
		expectedSender = common.HexToAddress(claimedSender)
	}

	verification, err := g.verifier.Verify(ctx, common.HexToHash(txHash), g.treasury, expectedSender, matcher)
	if err != nil {
		return nil, false, err
	}
	switch verification.Status {
	case chain.StatusPending:
		return nil, false, ErrNotYetConfirmed
	case chain.StatusInvalid:
		return nil, false, &InvalidProofError{Reason: verification.Reason}
	}

	rec, outcome, err := g.eligibility.TryComplete(ctx, userID, actionType, scopeKey,
		txHash, verification.Sender.Hex(), resultPayload)
	if err != nil {
		return nil, false, err
	}
	switch outcome {
	case repository.OutcomeConflict:
		return nil, false, ErrConflict
	case repository.OutcomeAlreadyCompleted:
		return rec, true, nil
	}
	return rec, false, nil
}
