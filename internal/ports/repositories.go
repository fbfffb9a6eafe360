package ports

import (
	"context"

	"github.com/volthu/csms/internal/domain"
)

// Repositories return (nil, nil) when a record does not exist; errors are
// reserved for infrastructure failures.

type ChargePointRepository interface {
	Save(ctx context.Context, cp *domain.ChargePoint) error
	FindByID(ctx context.Context, id uint) (*domain.ChargePoint, error)
	FindByOCPPID(ctx context.Context, ocppID string) (*domain.ChargePoint, error)
	List(ctx context.Context) ([]domain.ChargePoint, error)
}

type IntentRepository interface {
	Save(ctx context.Context, intent *domain.ChargingIntent) error
	FindByID(ctx context.Context, id uint) (*domain.ChargingIntent, error)
	// FindPending returns the non-terminal intent on (charge point,
	// connector), if any. At most one may exist at a time.
	FindPending(ctx context.Context, chargePointID uint, connectorID int) (*domain.ChargingIntent, error)
}

// SessionFilter narrows ListSessions. Nil fields are ignored.
type SessionFilter struct {
	ChargePointID *uint
	ConnectorID   *int
	ActiveOnly    bool
	Limit         int
	Offset        int
}

type SessionRepository interface {
	Save(ctx context.Context, s *domain.ChargeSession) error
	FindByID(ctx context.Context, id uint) (*domain.ChargeSession, error)
	// FindOpenByChargePoint returns open sessions on the station, newest
	// started first, bounded to a handful of candidates.
	FindOpenByChargePoint(ctx context.Context, chargePointID uint) ([]domain.ChargeSession, error)
	// FindOpenByTransactionID matches the station-facing transaction id.
	FindOpenByTransactionID(ctx context.Context, chargePointID uint, txID string) (*domain.ChargeSession, error)
	FindByIntentID(ctx context.Context, intentID uint) (*domain.ChargeSession, error)
	// FindOpenByEmail locates the open session owned by an anonymous
	// email, newest first (stop-code redemption path).
	FindOpenByEmail(ctx context.Context, email string) ([]domain.ChargeSession, error)
	FindActive(ctx context.Context, chargePointID uint, connectorID *int) (*domain.ChargeSession, error)
	List(ctx context.Context, f SessionFilter) ([]domain.ChargeSession, error)
}

type MeterSampleRepository interface {
	Save(ctx context.Context, sample *domain.MeterSample) error
	// FindBySession returns the session's samples ordered by sample
	// timestamp ascending.
	FindBySession(ctx context.Context, sessionID uint) ([]domain.MeterSample, error)
}
