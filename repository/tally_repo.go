package repository

import (
	"context"
	"time"

	"github.com/castgate/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TallyRepository struct {
	db *gorm.DB
}

func NewTallyRepository(db *gorm.DB) *TallyRepository {
	return &TallyRepository{db: db}
}

// Increment adds one vote for the candidate in the round. Counts are
// append-only; there is no decrement.
func (r *TallyRepository) Increment(ctx context.Context, scopeKey, candidateID string) error {
	tally := model.PredictionTally{
		ScopeKey:    scopeKey,
		CandidateID: candidateID,
		Count:       1,
		UpdatedAt:   time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope_key"}, {Name: "candidate_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("count + 1"),
			"updated_at": tally.UpdatedAt,
		}),
	}).Create(&tally).Error
}

// Counts returns candidate -> vote count for the round. An unknown round
// yields an empty map.
func (r *TallyRepository) Counts(ctx context.Context, scopeKey string) (map[string]int64, error) {
	var rows []model.PredictionTally
	if err := r.db.WithContext(ctx).Where("scope_key = ?", scopeKey).Find(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.CandidateID] = row.Count
	}
	return counts, nil
}
