package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/ports"
)

// openSessionCandidates bounds how many open sessions a single station
// lookup fetches. A healthy station has at most a couple.
const openSessionCandidates = 5

type SessionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSessionRepository(db *gorm.DB, log *zap.Logger) ports.SessionRepository {
	return &SessionRepository{
		db:  db,
		log: log,
	}
}

func (r *SessionRepository) Save(ctx context.Context, s *domain.ChargeSession) error {
	result := r.db.WithContext(ctx).Save(s)
	if result.Error != nil {
		r.log.Error("Failed to save charge session", zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id uint) (*domain.ChargeSession, error) {
	var s domain.ChargeSession
	result := r.db.WithContext(ctx).First(&s, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &s, nil
}

func (r *SessionRepository) FindOpenByChargePoint(ctx context.Context, chargePointID uint) ([]domain.ChargeSession, error) {
	var sessions []domain.ChargeSession
	result := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND finished_at IS NULL", chargePointID).
		Order("started_at desc").
		Limit(openSessionCandidates).
		Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}

func (r *SessionRepository) FindOpenByTransactionID(ctx context.Context, chargePointID uint, txID string) (*domain.ChargeSession, error) {
	var s domain.ChargeSession
	result := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND ocpp_transaction_id = ? AND finished_at IS NULL", chargePointID, txID).
		First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &s, nil
}

func (r *SessionRepository) FindByIntentID(ctx context.Context, intentID uint) (*domain.ChargeSession, error) {
	var s domain.ChargeSession
	result := r.db.WithContext(ctx).First(&s, "intent_id = ?", intentID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &s, nil
}

func (r *SessionRepository) FindOpenByEmail(ctx context.Context, email string) ([]domain.ChargeSession, error) {
	var sessions []domain.ChargeSession
	result := r.db.WithContext(ctx).
		Where("anonymous_email = ? AND finished_at IS NULL", email).
		Order("started_at desc").
		Limit(openSessionCandidates).
		Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}

func (r *SessionRepository) FindActive(ctx context.Context, chargePointID uint, connectorID *int) (*domain.ChargeSession, error) {
	query := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND finished_at IS NULL", chargePointID)
	if connectorID != nil {
		query = query.Where("connector_id = ?", *connectorID)
	}

	var s domain.ChargeSession
	result := query.Order("started_at desc").First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &s, nil
}

func (r *SessionRepository) List(ctx context.Context, f ports.SessionFilter) ([]domain.ChargeSession, error) {
	query := r.db.WithContext(ctx).Model(&domain.ChargeSession{})
	if f.ChargePointID != nil {
		query = query.Where("charge_point_id = ?", *f.ChargePointID)
	}
	if f.ConnectorID != nil {
		query = query.Where("connector_id = ?", *f.ConnectorID)
	}
	if f.ActiveOnly {
		query = query.Where("finished_at IS NULL")
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	var sessions []domain.ChargeSession
	result := query.Order("started_at desc").Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}
