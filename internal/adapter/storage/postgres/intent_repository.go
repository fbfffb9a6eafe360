package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/ports"
)

type IntentRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewIntentRepository(db *gorm.DB, log *zap.Logger) ports.IntentRepository {
	return &IntentRepository{
		db:  db,
		log: log,
	}
}

func (r *IntentRepository) Save(ctx context.Context, intent *domain.ChargingIntent) error {
	result := r.db.WithContext(ctx).Save(intent)
	if result.Error != nil {
		r.log.Error("Failed to save charging intent", zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *IntentRepository) FindByID(ctx context.Context, id uint) (*domain.ChargingIntent, error) {
	var intent domain.ChargingIntent
	result := r.db.WithContext(ctx).First(&intent, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &intent, nil
}

func (r *IntentRepository) FindPending(ctx context.Context, chargePointID uint, connectorID int) (*domain.ChargingIntent, error) {
	var intent domain.ChargingIntent
	result := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND connector_id = ? AND status = ?",
			chargePointID, connectorID, domain.IntentStatusPendingPayment).
		Order("id desc").
		First(&intent)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &intent, nil
}
