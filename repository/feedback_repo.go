package repository

import (
	"context"

	"github.com/castgate/model"
	"gorm.io/gorm"
)

type FeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Save(ctx context.Context, entry *model.FeedbackEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List pages stored feedback newest-first for manual review.
func (r *FeedbackRepository) List(ctx context.Context, page, size int) ([]*model.FeedbackEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	var list []*model.FeedbackEntry
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.FeedbackEntry{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * size
	if err := r.db.WithContext(ctx).Order("created_at desc").Offset(offset).Limit(size).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
