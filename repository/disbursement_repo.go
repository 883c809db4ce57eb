package repository

import (
	"context"

	"github.com/castgate/model"
	"gorm.io/gorm"
)

type DisbursementRepository struct {
	db *gorm.DB
}

func NewDisbursementRepository(db *gorm.DB) *DisbursementRepository {
	return &DisbursementRepository{db: db}
}

func (r *DisbursementRepository) Create(ctx context.Context, d *model.Disbursement) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *DisbursementRepository) MarkSent(ctx context.Context, id uint64, txHash string) error {
	return r.db.WithContext(ctx).Model(&model.Disbursement{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": "sent", "tx_hash": txHash}).Error
}

func (r *DisbursementRepository) MarkFailed(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&model.Disbursement{}).
		Where("id = ?", id).
		Update("status", "failed").Error
}
