package ports

import (
	"context"
	"errors"
	"time"

	"github.com/volthu/csms/internal/domain"
)

// Sentinel errors the HTTP layer maps to status codes and error codes.
var (
	ErrChargePointNotFound      = errors.New("charge point not found")
	ErrChargePointUnavailable   = errors.New("charge point not available")
	ErrSessionNotFound          = errors.New("session not found")
	ErrSessionAlreadyFinished   = errors.New("session already finished")
	ErrActiveSessionExists      = errors.New("active session exists")
	ErrMissingOCPPTransactionID = errors.New("session has no ocpp transaction id")
	ErrRemoteStartRejected      = errors.New("remote start rejected by station")
	ErrRemoteStopRejected       = errors.New("remote stop rejected by station")
	ErrRemoteStartFailed        = errors.New("remote start call failed")
	ErrRemoteStopFailed         = errors.New("remote stop call failed")
	ErrCheckoutCreateFailed     = errors.New("checkout creation failed")
	ErrStopCodeInvalid          = errors.New("stop code invalid")
	ErrIntentNotFound           = errors.New("intent not found")
	ErrInvalidHoldAmount        = errors.New("hold amount out of range")
)

// BootInfo is the station-reported identity from a BootNotification.
type BootInfo struct {
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
}

type StationService interface {
	// Boot upserts the station record and returns the heartbeat interval
	// the station should adopt, in seconds.
	Boot(ctx context.Context, ocppID string, info BootInfo) (int, error)
	Heartbeat(ctx context.Context, ocppID string) error
	StatusNotification(ctx context.Context, ocppID string, connectorID int, rawStatus string) error

	GetChargePoint(ctx context.Context, id uint) (*domain.ChargePoint, error)
	GetChargePointByOCPPID(ctx context.Context, ocppID string) (*domain.ChargePoint, error)
	ListChargePoints(ctx context.Context) ([]domain.ChargePoint, error)
	// EffectiveStatus overlays the derived offline state on the stored
	// status when the station has been silent too long.
	EffectiveStatus(cp *domain.ChargePoint, now time.Time) domain.ChargePointStatus
}

type StartTransactionInput struct {
	ConnectorID  *int
	IDTag        string
	MeterStartWh *float64
	Timestamp    *time.Time
}

type StopTransactionInput struct {
	// TransactionID is the station-echoed transaction id, as received.
	TransactionID string
	MeterStopWh   *float64
	Timestamp     *time.Time
	Reason        string
}

// MeterReading is one normalized sample extracted from a MeterValues
// frame, after per-measurand aggregation.
type MeterReading struct {
	Timestamp     time.Time
	EnergyWhTotal *float64
	PowerW        *float64
	CurrentA      *float64
}

type MeterValuesInput struct {
	ConnectorID   *int
	TransactionID *int
	Readings      []MeterReading
}

type RemoteStartInput struct {
	ChargePointID uint
	ConnectorID   int
	UserTag       string
}

type ChargingService interface {
	// StartTransaction returns the transaction id to confirm back to the
	// station.
	StartTransaction(ctx context.Context, ocppID string, in StartTransactionInput) (int, error)
	StopTransaction(ctx context.Context, ocppID string, in StopTransactionInput) error
	RecordMeterValues(ctx context.Context, ocppID string, in MeterValuesInput) error

	RemoteStartSession(ctx context.Context, in RemoteStartInput) error
	RemoteStopSession(ctx context.Context, sessionID uint) error

	GetSession(ctx context.Context, id uint) (*domain.ChargeSession, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]domain.ChargeSession, error)
	ActiveSession(ctx context.Context, chargePointID uint, connectorID *int) (*domain.ChargeSession, error)
}

type CreateIntentInput struct {
	ChargePointID uint
	ConnectorID   int
	Email         string
	HoldAmountHUF int
}

type CreateIntentResult struct {
	Intent     *domain.ChargingIntent
	PaymentURL string
}

type IntentService interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (*CreateIntentResult, error)
	// ProcessStripeWebhook verifies the signature, parses the event and
	// applies it. Signature failures come back as the sentinel errors in
	// payment.go.
	ProcessStripeWebhook(ctx context.Context, payload []byte, sigHeader string, now time.Time) error
	// RedeemStopCode stops the open session owned by email, authorized
	// by the emailed stop code.
	RedeemStopCode(ctx context.Context, email, code string) error
}

// RemoteResult is the station's answer to a server-initiated call.
type RemoteResult struct {
	Status string
	Raw    map[string]interface{}
}

// Accepted reports whether the station agreed to execute the command.
func (r *RemoteResult) Accepted() bool { return r != nil && r.Status == "Accepted" }

// RemoteCommander sends server-initiated OCPP calls over a station's
// live connection and waits for the matching result.
type RemoteCommander interface {
	RemoteStartTransaction(ctx context.Context, ocppID string, connectorID int, idTag string) (*RemoteResult, error)
	RemoteStopTransaction(ctx context.Context, ocppID string, transactionID int) (*RemoteResult, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}

// EmailSender delivers the one transactional mail the system sends, the
// stop code that lets an anonymous user end their session.
type EmailSender interface {
	SendStopCode(ctx context.Context, to, code string, session *domain.ChargeSession) error
}
