package mocks

import (
	"context"
	"time"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/ports"
)

// MockRemoteCommander is a mock implementation of RemoteCommander
type MockRemoteCommander struct {
	RemoteStartTransactionFunc func(ctx context.Context, ocppID string, connectorID int, idTag string) (*ports.RemoteResult, error)
	RemoteStopTransactionFunc  func(ctx context.Context, ocppID string, transactionID int) (*ports.RemoteResult, error)
}

func (m *MockRemoteCommander) RemoteStartTransaction(ctx context.Context, ocppID string, connectorID int, idTag string) (*ports.RemoteResult, error) {
	if m.RemoteStartTransactionFunc != nil {
		return m.RemoteStartTransactionFunc(ctx, ocppID, connectorID, idTag)
	}
	return &ports.RemoteResult{Status: "Accepted"}, nil
}

func (m *MockRemoteCommander) RemoteStopTransaction(ctx context.Context, ocppID string, transactionID int) (*ports.RemoteResult, error) {
	if m.RemoteStopTransactionFunc != nil {
		return m.RemoteStopTransactionFunc(ctx, ocppID, transactionID)
	}
	return &ports.RemoteResult{Status: "Accepted"}, nil
}

// MockPaymentGateway is a mock implementation of PaymentGateway
type MockPaymentGateway struct {
	NameFunc                   func() string
	CreateCheckoutFunc         func(ctx context.Context, in ports.CheckoutInput) (*ports.CheckoutSession, error)
	VerifySignatureFunc        func(payload []byte, header string, now time.Time) error
	ParseCheckoutCompletedFunc func(payload []byte) (*ports.CheckoutCompleted, error)
}

func (m *MockPaymentGateway) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "stripe"
}

func (m *MockPaymentGateway) CreateCheckout(ctx context.Context, in ports.CheckoutInput) (*ports.CheckoutSession, error) {
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, in)
	}
	return &ports.CheckoutSession{ProviderRef: "cs_test", PaymentURL: "https://checkout.test/cs_test"}, nil
}

func (m *MockPaymentGateway) VerifySignature(payload []byte, header string, now time.Time) error {
	if m.VerifySignatureFunc != nil {
		return m.VerifySignatureFunc(payload, header, now)
	}
	return nil
}

func (m *MockPaymentGateway) ParseCheckoutCompleted(payload []byte) (*ports.CheckoutCompleted, error) {
	if m.ParseCheckoutCompletedFunc != nil {
		return m.ParseCheckoutCompletedFunc(payload)
	}
	return nil, nil
}

// MockEmailSender is a mock implementation of EmailSender
type MockEmailSender struct {
	SendStopCodeFunc func(ctx context.Context, to, code string, session *domain.ChargeSession) error
}

func (m *MockEmailSender) SendStopCode(ctx context.Context, to, code string, session *domain.ChargeSession) error {
	if m.SendStopCodeFunc != nil {
		return m.SendStopCodeFunc(ctx, to, code, session)
	}
	return nil
}

// MockChargingService is a mock implementation of ChargingService
type MockChargingService struct {
	StartTransactionFunc   func(ctx context.Context, ocppID string, in ports.StartTransactionInput) (int, error)
	StopTransactionFunc    func(ctx context.Context, ocppID string, in ports.StopTransactionInput) error
	RecordMeterValuesFunc  func(ctx context.Context, ocppID string, in ports.MeterValuesInput) error
	RemoteStartSessionFunc func(ctx context.Context, in ports.RemoteStartInput) error
	RemoteStopSessionFunc  func(ctx context.Context, sessionID uint) error
	GetSessionFunc         func(ctx context.Context, id uint) (*domain.ChargeSession, error)
	ListSessionsFunc       func(ctx context.Context, f ports.SessionFilter) ([]domain.ChargeSession, error)
	ActiveSessionFunc      func(ctx context.Context, chargePointID uint, connectorID *int) (*domain.ChargeSession, error)
}

func (m *MockChargingService) StartTransaction(ctx context.Context, ocppID string, in ports.StartTransactionInput) (int, error) {
	if m.StartTransactionFunc != nil {
		return m.StartTransactionFunc(ctx, ocppID, in)
	}
	return 1, nil
}

func (m *MockChargingService) StopTransaction(ctx context.Context, ocppID string, in ports.StopTransactionInput) error {
	if m.StopTransactionFunc != nil {
		return m.StopTransactionFunc(ctx, ocppID, in)
	}
	return nil
}

func (m *MockChargingService) RecordMeterValues(ctx context.Context, ocppID string, in ports.MeterValuesInput) error {
	if m.RecordMeterValuesFunc != nil {
		return m.RecordMeterValuesFunc(ctx, ocppID, in)
	}
	return nil
}

func (m *MockChargingService) RemoteStartSession(ctx context.Context, in ports.RemoteStartInput) error {
	if m.RemoteStartSessionFunc != nil {
		return m.RemoteStartSessionFunc(ctx, in)
	}
	return nil
}

func (m *MockChargingService) RemoteStopSession(ctx context.Context, sessionID uint) error {
	if m.RemoteStopSessionFunc != nil {
		return m.RemoteStopSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockChargingService) GetSession(ctx context.Context, id uint) (*domain.ChargeSession, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockChargingService) ListSessions(ctx context.Context, f ports.SessionFilter) ([]domain.ChargeSession, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, f)
	}
	return []domain.ChargeSession{}, nil
}

func (m *MockChargingService) ActiveSession(ctx context.Context, chargePointID uint, connectorID *int) (*domain.ChargeSession, error) {
	if m.ActiveSessionFunc != nil {
		return m.ActiveSessionFunc(ctx, chargePointID, connectorID)
	}
	return nil, nil
}
