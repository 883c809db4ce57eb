package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/castgate/chain"
	"github.com/castgate/logger"
	"github.com/castgate/model"
	"github.com/castgate/repository"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const predictionPayloadTag = "castgate:predict:"

type PredictionStatus struct {
	CanPredict  bool             `json:"canPredict"`
	Predicted   bool             `json:"predicted"`
	Round       string           `json:"round"`
	Choice      string           `json:"choice,omitempty"`
	Candidates  []string         `json:"candidates"`
	Percentages map[string]int64 `json:"percentages"`
}

type PredictionResult struct {
	Round            string `json:"round"`
	CandidateID      string `json:"candidateId"`
	AlreadyCompleted bool   `json:"alreadyCompleted"`
}

// PredictionService gates one vote per (user, round). Once completed the
// chosen candidate is immutable for that round; the tally only ever
// increments.
type PredictionService struct {
	gate       gate
	tally      *repository.TallyRepository
	candidates []string
}

func NewPredictionService(eligibility *repository.EligibilityRepository, tally *repository.TallyRepository, verifier Verifier, treasury common.Address, candidates []string) *PredictionService {
	return &PredictionService{
		gate:       gate{eligibility: eligibility, verifier: verifier, treasury: treasury},
		tally:      tally,
		candidates: candidates,
	}
}

// CurrentRound returns today's round key in UTC.
func CurrentRound() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (s *PredictionService) Status(ctx context.Context, userID, round string) (*PredictionStatus, error) {
	if userID == "" {
		return nil, &ValidationError{Msg: "userId is required"}
	}
	if round == "" {
		round = CurrentRound()
	}
	rec, err := s.gate.eligibility.CheckEligibility(ctx, userID, model.PredictionActionType, round)
	if err != nil {
		return nil, err
	}

	status := PredictionStatus{
		Round:      round,
		Candidates: s.candidates,
	}
	if rec.State == model.StateCompleted {
		status.Predicted = true
		var stored PredictionResult
		if err := json.Unmarshal([]byte(rec.ResultPayload), &stored); err == nil {
			status.Choice = stored.CandidateID
		}
	} else {
		status.CanPredict = true
	}

	counts, err := s.tally.Counts(ctx, round)
	if err != nil {
		return nil, err
	}
	status.Percentages = percentages(s.candidates, counts)
	return &status, nil
}

func (s *PredictionService) Submit(ctx context.Context, userID, round, candidateID, txHash, claimedSender string) (*PredictionResult, error) {
	if userID == "" {
		return nil, &ValidationError{Msg: "userId is required"}
	}
	if round == "" {
		round = CurrentRound()
	}
	if !s.validCandidate(candidateID) {
		return nil, &ValidationError{Msg: fmt.Sprintf("unknown candidate: %s", candidateID)}
	}

	result := PredictionResult{Round: round, CandidateID: candidateID}
	payload, _ := json.Marshal(result)

	matcher := chain.PrefixMatcher(fmt.Sprintf("%s%s:%s", predictionPayloadTag, round, candidateID))
	rec, already, err := s.gate.submit(ctx, userID, model.PredictionActionType, round,
		txHash, claimedSender, matcher, string(payload))
	if err != nil {
		return nil, err
	}
	if already {
		var stored PredictionResult
		if err := json.Unmarshal([]byte(rec.ResultPayload), &stored); err == nil {
			result = stored
		}
		result.AlreadyCompleted = true
		return &result, nil
	}

	if err := s.tally.Increment(ctx, round, candidateID); err != nil {
		logger.Error("prediction: increment tally",
			zap.String("round", round),
			zap.String("candidate", candidateID),
			zap.Error(err))
	}
	return &result, nil
}

func (s *PredictionService) validCandidate(candidateID string) bool {
	for _, c := range s.candidates {
		if c == candidateID {
			return true
		}
	}
	return false
}

// percentages computes integer shares per candidate; an empty round yields
// zero for every candidate.
func percentages(candidates []string, counts map[string]int64) map[string]int64 {
	var total int64
	for _, n := range counts {
		total += n
	}
	out := make(map[string]int64, len(candidates))
	for _, c := range candidates {
		if total == 0 {
			out[c] = 0
			continue
		}
		out[c] = counts[c] * 100 / total
	}
	return out
}
