package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/castgate/chain"
	"github.com/castgate/logger"
	"github.com/castgate/model"
	"github.com/castgate/repository"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	feedbackPayloadTag = "castgate:feedback:"
	maxFeedbackLength  = 500

	// every user has one open-ended feedback allowance
	feedbackScopeKey = "default"
)

type FeedbackStatus struct {
	CanSubmit bool `json:"canSubmit"`
	Submitted bool `json:"submitted"`
	MaxLength int  `json:"maxLength"`
}

type FeedbackResult struct {
	Message          string `json:"message"`
	AlreadyCompleted bool   `json:"alreadyCompleted"`
}

type FeedbackPage struct {
	Entries []*model.FeedbackEntry `json:"entries"`
	Total   int64                  `json:"total"`
	Page    int                    `json:"page"`
}

// FeedbackService gates a single feedback submission per user. The proof
// transaction must embed the SHA-256 digest of the message so the chain
// commits to the exact text being stored.
type FeedbackService struct {
	gate     gate
	feedback *repository.FeedbackRepository
}

func NewFeedbackService(eligibility *repository.EligibilityRepository, feedback *repository.FeedbackRepository, verifier Verifier, treasury common.Address) *FeedbackService {
	return &FeedbackService{
		gate:     gate{eligibility: eligibility, verifier: verifier, treasury: treasury},
		feedback: feedback,
	}
}

func (s *FeedbackService) Status(ctx context.Context, userID string) (*FeedbackStatus, error) {
	if userID == "" {
		return nil, &ValidationError{Msg: "userId is required"}
	}
	rec, err := s.gate.eligibility.CheckEligibility(ctx, userID, model.FeedbackActionType, feedbackScopeKey)
	if err != nil {
		return nil, err
	}
	submitted := rec.State == model.StateCompleted
	return &FeedbackStatus{CanSubmit: !submitted, Submitted: submitted, MaxLength: maxFeedbackLength}, nil
}

// Entries pages stored feedback newest-first for manual review.
func (s *FeedbackService) Entries(ctx context.Context, page, size int) (*FeedbackPage, error) {
	if page < 1 {
		page = 1
	}
	entries, total, err := s.feedback.List(ctx, page, size)
	if err != nil {
		return nil, err
	}
	return &FeedbackPage{Entries: entries, Total: total, Page: page}, nil
}

func (s *FeedbackService) Submit(ctx context.Context, userID, message, txHash, claimedSender string) (*FeedbackResult, error) {
	if userID == "" {
		return nil, &ValidationError{Msg: "userId is required"}
	}
	// domain validation runs before any chain read
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &ValidationError{Msg: "message is required"}
	}
	if utf8.RuneCountInString(message) > maxFeedbackLength {
		return nil, &ValidationError{Msg: "message exceeds 500 characters"}
	}

	result := FeedbackResult{Message: message}
	payload, _ := json.Marshal(result)

	digest := sha256.Sum256([]byte(message))
	matcher := chain.DigestMatcher(feedbackPayloadTag, digest[:])
	rec, already, err := s.gate.submit(ctx, userID, model.FeedbackActionType, feedbackScopeKey,
		txHash, claimedSender, matcher, string(payload))
	if err != nil {
		return nil, err
	}
	if already {
		var stored FeedbackResult
		if err := json.Unmarshal([]byte(rec.ResultPayload), &stored); err == nil {
			result = stored
		}
		result.AlreadyCompleted = true
		return &result, nil
	}

	entry := model.FeedbackEntry{
		UserID:      userID,
		Message:     message,
		ProofTxHash: txHash,
	}
	if err := s.feedback.Save(ctx, &entry); err != nil {
		logger.Error("feedback: save entry", zap.String("user", userID), zap.Error(err))
	}
	return &result, nil
}
