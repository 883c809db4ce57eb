package model

import (
	"time"

	"gorm.io/gorm"
)

type ActionType = string

const (
	ClaimActionType      ActionType = "claim"
	FeedbackActionType   ActionType = "feedback"
	PredictionActionType ActionType = "prediction"
)

type EligibilityState = string

const (
	StateEligible  EligibilityState = "eligible"
	StateCompleted EligibilityState = "completed"
)

// EligibilityRecord is the durable anti-replay ledger: one row per
// (user, action type, scope key), created lazily on first status check
// and never deleted. ProofTxHash is unique across the whole table so a
// single transaction can satisfy at most one record.
type EligibilityRecord struct {
	ID            uint64           `gorm:"primaryKey" json:"id"`
	UserID        string           `gorm:"size:128;not null;uniqueIndex:idx_user_action_scope,priority:1" json:"user_id"`
	ActionType    ActionType       `gorm:"size:32;not null;uniqueIndex:idx_user_action_scope,priority:2" json:"action_type"`
	ScopeKey      string           `gorm:"size:128;not null;uniqueIndex:idx_user_action_scope,priority:3" json:"scope_key"`
	State         EligibilityState `gorm:"size:16;not null;default:eligible" json:"state"`
	ProofTxHash   *string          `gorm:"size:128;uniqueIndex" json:"proof_tx_hash,omitempty"`
	SenderAddress string           `gorm:"size:64" json:"sender_address,omitempty"`
	ResultPayload string           `gorm:"type:text" json:"result_payload,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// PredictionTally holds per-round vote counts. Increment-only; it can be
// rebuilt by replaying completed prediction records if it ever diverges.
type PredictionTally struct {
	ID          uint64 `gorm:"primaryKey"`
	ScopeKey    string `gorm:"size:128;not null;uniqueIndex:idx_scope_candidate,priority:1"`
	CandidateID string `gorm:"size:64;not null;uniqueIndex:idx_scope_candidate,priority:2"`
	Count       int64  `gorm:"not null;default:0"`
	UpdatedAt   time.Time
}

// FeedbackEntry stores submitted feedback text for manual review.
type FeedbackEntry struct {
	ID          uint64 `gorm:"primaryKey"`
	UserID      string `gorm:"size:128;not null;index"`
	Message     string `gorm:"type:text;not null"`
	ProofTxHash string `gorm:"size:128;index"`
	CreatedAt   time.Time
}

// Disbursement records the on-chain payout triggered by a completed
// claim: created pending, then marked sent or failed after broadcast.
type Disbursement struct {
	ID                  uint64 `gorm:"primaryKey"`
	EligibilityRecordID uint64 `gorm:"not null;uniqueIndex"`
	ToAddress           string `gorm:"size:64;not null"`
	AmountWei           string `gorm:"type:text;not null"`
	TxHash              string `gorm:"size:128"`
	Status              string `gorm:"size:16;not null;default:pending"` // pending / sent / failed
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// helper: create tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&EligibilityRecord{},
		&PredictionTally{},
		&FeedbackEntry{},
		&Disbursement{},
	)
}
