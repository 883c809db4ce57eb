package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/castgate/model"
	"gorm.io/gorm"
)

// Outcome of a TryComplete call.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeAlreadyCompleted
	OutcomeConflict
)

type EligibilityRepository struct {
	db *gorm.DB
}

func NewEligibilityRepository(db *gorm.DB) *EligibilityRepository {
	return &EligibilityRepository{db: db}
}

// CheckEligibility returns the record for (userID, actionType, scopeKey),
// creating it in the eligible state on first contact.
func (r *EligibilityRepository) CheckEligibility(ctx context.Context, userID string, actionType model.ActionType, scopeKey string) (*model.EligibilityRecord, error) {
	rec := model.EligibilityRecord{
		UserID:     userID,
		ActionType: actionType,
		ScopeKey:   scopeKey,
		State:      model.StateEligible,
	}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND action_type = ? AND scope_key = ?", userID, actionType, scopeKey).
		FirstOrCreate(&rec).Error
	if err != nil {
		if isDuplicateKey(err) {
			// lost a creation race; the row exists now
			err = r.db.WithContext(ctx).
				Where("user_id = ? AND action_type = ? AND scope_key = ?", userID, actionType, scopeKey).
				First(&rec).Error
		}
		if err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

// TryComplete performs the single atomic eligible -> completed transition.
// Of N concurrent calls for the same (userID, actionType, scopeKey) exactly
// one observes OutcomeCompleted; the rest observe OutcomeAlreadyCompleted
// with the winner's record. A proofTxHash already attached to a different
// record anywhere in the table yields OutcomeConflict.
func (r *EligibilityRepository) TryComplete(ctx context.Context, userID string, actionType model.ActionType, scopeKey, proofTxHash, senderAddress, resultPayload string) (*model.EligibilityRecord, Outcome, error) {
	for attempt := 0; ; attempt++ {
		rec, outcome, err := r.tryComplete(ctx, userID, actionType, scopeKey, proofTxHash, senderAddress, resultPayload)
		if err == nil {
			return rec, outcome, nil
		}
		if !isDuplicateKey(err) {
			return nil, 0, err
		}
		// two unique indexes can abort the commit: the hash index means
		// the transaction was consumed elsewhere, the composite index
		// means we lost the first-contact insert race for this scope
		holder, heldOutcome, resolved, resolveErr := r.resolveDuplicate(ctx, userID, actionType, scopeKey, proofTxHash)
		if resolveErr != nil {
			return nil, 0, resolveErr
		}
		if resolved {
			return holder, heldOutcome, nil
		}
		if attempt > 0 {
			return nil, 0, err
		}
		// the scope row exists now; the retry finds it instead of inserting
	}
}

// resolveDuplicate classifies a unique violation that escaped the
// transaction. A hash held by another scope's record is a Conflict; held
// by this scope's record, the concurrent winner already completed with
// the same proof. An unclaimed hash means the composite index fired on
// the create step, which the caller resolves by retrying.
func (r *EligibilityRepository) resolveDuplicate(ctx context.Context, userID string, actionType model.ActionType, scopeKey, proofTxHash string) (*model.EligibilityRecord, Outcome, bool, error) {
	var holder model.EligibilityRecord
	err := r.db.WithContext(ctx).Where("proof_tx_hash = ?", proofTxHash).First(&holder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}
	if holder.UserID == userID && holder.ActionType == actionType && holder.ScopeKey == scopeKey {
		return &holder, OutcomeAlreadyCompleted, true, nil
	}
	return nil, OutcomeConflict, true, nil
}

func (r *EligibilityRepository) tryComplete(ctx context.Context, userID string, actionType model.ActionType, scopeKey, proofTxHash, senderAddress, resultPayload string) (*model.EligibilityRecord, Outcome, error) {
	var (
		rec     model.EligibilityRecord
		outcome Outcome
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec = model.EligibilityRecord{
			UserID:     userID,
			ActionType: actionType,
			ScopeKey:   scopeKey,
			State:      model.StateEligible,
		}
		if err := tx.Where("user_id = ? AND action_type = ? AND scope_key = ?", userID, actionType, scopeKey).
			FirstOrCreate(&rec).Error; err != nil {
			return err
		}

		if rec.State == model.StateCompleted {
			outcome = OutcomeAlreadyCompleted
			return nil
		}

		// hash already consumed by another record?
		var other model.EligibilityRecord
		err := tx.Where("proof_tx_hash = ? AND id <> ?", proofTxHash, rec.ID).First(&other).Error
		if err == nil {
			outcome = OutcomeConflict
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&model.EligibilityRecord{}).
			Where("id = ? AND state = ?", rec.ID, model.StateEligible).
			Updates(map[string]interface{}{
				"state":          model.StateCompleted,
				"proof_tx_hash":  proofTxHash,
				"sender_address": senderAddress,
				"result_payload": resultPayload,
				"completed_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// a concurrent call won the compare-and-set; return its result
			if err := tx.First(&rec, rec.ID).Error; err != nil {
				return err
			}
			outcome = OutcomeAlreadyCompleted
			return nil
		}

		if err := tx.First(&rec, rec.ID).Error; err != nil {
			return err
		}
		outcome = OutcomeCompleted
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &rec, outcome, nil
}

// FindCompleted returns the completed record for the scope, or
// gorm.ErrRecordNotFound.
func (r *EligibilityRepository) FindCompleted(ctx context.Context, userID string, actionType model.ActionType, scopeKey string) (*model.EligibilityRecord, error) {
	var rec model.EligibilityRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND action_type = ? AND scope_key = ? AND state = ?",
			userID, actionType, scopeKey, model.StateCompleted).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
