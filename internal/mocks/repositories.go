package mocks

import (
	"context"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/ports"
)

// MockChargePointRepository is a mock implementation of ChargePointRepository
type MockChargePointRepository struct {
	SaveFunc         func(ctx context.Context, cp *domain.ChargePoint) error
	FindByIDFunc     func(ctx context.Context, id uint) (*domain.ChargePoint, error)
	FindByOCPPIDFunc func(ctx context.Context, ocppID string) (*domain.ChargePoint, error)
	ListFunc         func(ctx context.Context) ([]domain.ChargePoint, error)
}

func (m *MockChargePointRepository) Save(ctx context.Context, cp *domain.ChargePoint) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, cp)
	}
	return nil
}

func (m *MockChargePointRepository) FindByID(ctx context.Context, id uint) (*domain.ChargePoint, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockChargePointRepository) FindByOCPPID(ctx context.Context, ocppID string) (*domain.ChargePoint, error) {
	if m.FindByOCPPIDFunc != nil {
		return m.FindByOCPPIDFunc(ctx, ocppID)
	}
	return nil, nil
}

func (m *MockChargePointRepository) List(ctx context.Context) ([]domain.ChargePoint, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return []domain.ChargePoint{}, nil
}

// MockIntentRepository is a mock implementation of IntentRepository
type MockIntentRepository struct {
	SaveFunc        func(ctx context.Context, intent *domain.ChargingIntent) error
	FindByIDFunc    func(ctx context.Context, id uint) (*domain.ChargingIntent, error)
	FindPendingFunc func(ctx context.Context, chargePointID uint, connectorID int) (*domain.ChargingIntent, error)
}

func (m *MockIntentRepository) Save(ctx context.Context, intent *domain.ChargingIntent) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, intent)
	}
	return nil
}

func (m *MockIntentRepository) FindByID(ctx context.Context, id uint) (*domain.ChargingIntent, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockIntentRepository) FindPending(ctx context.Context, chargePointID uint, connectorID int) (*domain.ChargingIntent, error) {
	if m.FindPendingFunc != nil {
		return m.FindPendingFunc(ctx, chargePointID, connectorID)
	}
	return nil, nil
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	SaveFunc                    func(ctx context.Context, s *domain.ChargeSession) error
	FindByIDFunc                func(ctx context.Context, id uint) (*domain.ChargeSession, error)
	FindOpenByChargePointFunc   func(ctx context.Context, chargePointID uint) ([]domain.ChargeSession, error)
	FindOpenByTransactionIDFunc func(ctx context.Context, chargePointID uint, txID string) (*domain.ChargeSession, error)
	FindByIntentIDFunc          func(ctx context.Context, intentID uint) (*domain.ChargeSession, error)
	FindOpenByEmailFunc         func(ctx context.Context, email string) ([]domain.ChargeSession, error)
	FindActiveFunc              func(ctx context.Context, chargePointID uint, connectorID *int) (*domain.ChargeSession, error)
	ListFunc                    func(ctx context.Context, f ports.SessionFilter) ([]domain.ChargeSession, error)
}

func (m *MockSessionRepository) Save(ctx context.Context, s *domain.ChargeSession) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, s)
	}
	return nil
}

func (m *MockSessionRepository) FindByID(ctx context.Context, id uint) (*domain.ChargeSession, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindOpenByChargePoint(ctx context.Context, chargePointID uint) ([]domain.ChargeSession, error) {
	if m.FindOpenByChargePointFunc != nil {
		return m.FindOpenByChargePointFunc(ctx, chargePointID)
	}
	return []domain.ChargeSession{}, nil
}

func (m *MockSessionRepository) FindOpenByTransactionID(ctx context.Context, chargePointID uint, txID string) (*domain.ChargeSession, error) {
	if m.FindOpenByTransactionIDFunc != nil {
		return m.FindOpenByTransactionIDFunc(ctx, chargePointID, txID)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindByIntentID(ctx context.Context, intentID uint) (*domain.ChargeSession, error) {
	if m.FindByIntentIDFunc != nil {
		return m.FindByIntentIDFunc(ctx, intentID)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindOpenByEmail(ctx context.Context, email string) ([]domain.ChargeSession, error) {
	if m.FindOpenByEmailFunc != nil {
		return m.FindOpenByEmailFunc(ctx, email)
	}
	return []domain.ChargeSession{}, nil
}

func (m *MockSessionRepository) FindActive(ctx context.Context, chargePointID uint, connectorID *int) (*domain.ChargeSession, error) {
	if m.FindActiveFunc != nil {
		return m.FindActiveFunc(ctx, chargePointID, connectorID)
	}
	return nil, nil
}

func (m *MockSessionRepository) List(ctx context.Context, f ports.SessionFilter) ([]domain.ChargeSession, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	return []domain.ChargeSession{}, nil
}

// MockMeterSampleRepository is a mock implementation of MeterSampleRepository
type MockMeterSampleRepository struct {
	SaveFunc          func(ctx context.Context, sample *domain.MeterSample) error
	FindBySessionFunc func(ctx context.Context, sessionID uint) ([]domain.MeterSample, error)
}

func (m *MockMeterSampleRepository) Save(ctx context.Context, sample *domain.MeterSample) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, sample)
	}
	return nil
}

func (m *MockMeterSampleRepository) FindBySession(ctx context.Context, sessionID uint) ([]domain.MeterSample, error) {
	if m.FindBySessionFunc != nil {
		return m.FindBySessionFunc(ctx, sessionID)
	}
	return []domain.MeterSample{}, nil
}
