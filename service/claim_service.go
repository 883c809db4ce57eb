package service

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/castgate/chain"
	"github.com/castgate/logger"
	"github.com/castgate/model"
	"github.com/castgate/repository"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const claimPayloadTag = "castgate:claim:"

// Disburser broadcasts the token payout for a completed claim.
type Disburser interface {
	Disburse(ctx context.Context, to common.Address, amountWei *big.Int) (string, error)
}

type ClaimStatus struct {
	CanClaim  bool   `json:"canClaim"`
	Claimed   bool   `json:"claimed"`
	AmountWei string `json:"amountWei"`
	ProjectID string `json:"projectId"`
}

type ClaimResult struct {
	AmountWei        string `json:"amountWei"`
	ProjectID        string `json:"projectId"`
	AlreadyCompleted bool   `json:"alreadyCompleted"`
}

// ClaimService gates a one-time token claim per (user, featured project).
// Wallet rotation does not reset the allowance: the record is keyed on the
// platform user id, the wallet only carries the proof.
type ClaimService struct {
	gate          gate
	disbursements *repository.DisbursementRepository
	disburser     Disburser
	amountWei     *big.Int
}

func NewClaimService(eligibility *repository.EligibilityRepository, disbursements *repository.DisbursementRepository, verifier Verifier, disburser Disburser, treasury common.Address, amountWei *big.Int) *ClaimService {
	return &ClaimService{
		gate:          gate{eligibility: eligibility, verifier: verifier, treasury: treasury},
		disbursements: disbursements,
		disburser:     disburser,
		amountWei:     amountWei,
	}
}

func (s *ClaimService) Status(ctx context.Context, userID, projectID string) (*ClaimStatus, error) {
	if userID == "" || projectID == "" {
		return nil, &ValidationError{Msg: "userId and scope are required"}
	}
	rec, err := s.gate.eligibility.CheckEligibility(ctx, userID, model.ClaimActionType, projectID)
	if err != nil {
		return nil, err
	}
	claimed := rec.State == model.StateCompleted
	return &ClaimStatus{
		CanClaim:  !claimed,
		Claimed:   claimed,
		AmountWei: s.amountWei.String(),
		ProjectID: projectID,
	}, nil
}

func (s *ClaimService) Submit(ctx context.Context, userID, projectID, txHash, claimedSender string) (*ClaimResult, error) {
	if userID == "" || projectID == "" {
		return nil, &ValidationError{Msg: "userId and scope are required"}
	}

	result := ClaimResult{AmountWei: s.amountWei.String(), ProjectID: projectID}
	payload, _ := json.Marshal(result)

	matcher := chain.PrefixMatcher(claimPayloadTag + projectID)
	rec, already, err := s.gate.submit(ctx, userID, model.ClaimActionType, projectID,
		txHash, claimedSender, matcher, string(payload))
	if err != nil {
		return nil, err
	}
	if already {
		var stored ClaimResult
		if err := json.Unmarshal([]byte(rec.ResultPayload), &stored); err == nil {
			result = stored
		}
		result.AlreadyCompleted = true
		return &result, nil
	}

	s.disburse(ctx, rec)
	return &result, nil
}

// disburse runs the one-shot payout after the first completion. A failed
// broadcast leaves the record completed and the disbursement row failed
// for operator retry; the protocol never re-runs the side effect.
func (s *ClaimService) disburse(ctx context.Context, rec *model.EligibilityRecord) {
	d := model.Disbursement{
		EligibilityRecordID: rec.ID,
		ToAddress:           rec.SenderAddress,
		AmountWei:           s.amountWei.String(),
	}
	if err := s.disbursements.Create(ctx, &d); err != nil {
		logger.Error("claim: create disbursement", zap.Uint64("record", rec.ID), zap.Error(err))
		return
	}

	txHash, err := s.disburser.Disburse(ctx, common.HexToAddress(rec.SenderAddress), s.amountWei)
	if err != nil {
		logger.Error("claim: disburse failed", zap.Uint64("record", rec.ID), zap.Error(err))
		if err := s.disbursements.MarkFailed(ctx, d.ID); err != nil {
			logger.Error("claim: mark failed", zap.Uint64("disbursement", d.ID), zap.Error(err))
		}
		return
	}
	if err := s.disbursements.MarkSent(ctx, d.ID, txHash); err != nil {
		logger.Error("claim: mark sent", zap.Uint64("disbursement", d.ID), zap.Error(err))
	}
	logger.Info("claim disbursed",
		zap.String("user", rec.UserID),
		zap.String("to", rec.SenderAddress),
		zap.String("tx", txHash))
}
