package postgres

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/ports"
)

type MeterSampleRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewMeterSampleRepository(db *gorm.DB, log *zap.Logger) ports.MeterSampleRepository {
	return &MeterSampleRepository{
		db:  db,
		log: log,
	}
}

func (r *MeterSampleRepository) Save(ctx context.Context, sample *domain.MeterSample) error {
	result := r.db.WithContext(ctx).Create(sample)
	if result.Error != nil {
		r.log.Error("Failed to save meter sample", zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *MeterSampleRepository) FindBySession(ctx context.Context, sessionID uint) ([]domain.MeterSample, error) {
	var samples []domain.MeterSample
	result := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("ts asc").
		Find(&samples)
	if result.Error != nil {
		return nil, result.Error
	}
	return samples, nil
}
