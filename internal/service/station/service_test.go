package station

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/mocks"
	"github.com/volthu/csms/internal/ports"
)

func newTestService(repo *mocks.MockChargePointRepository, sessions *mocks.MockSessionRepository) *Service {
	if repo == nil {
		repo = &mocks.MockChargePointRepository{}
	}
	if sessions == nil {
		sessions = &mocks.MockSessionRepository{}
	}
	svc := NewService(repo, sessions, mocks.NewMockCache(), Config{}, zap.NewNop())
	return svc.(*Service)
}

func TestBootRegistersNewChargePoint(t *testing.T) {
	var saved *domain.ChargePoint
	repo := &mocks.MockChargePointRepository{
		SaveFunc: func(ctx context.Context, cp *domain.ChargePoint) error {
			saved = cp
			return nil
		},
	}
	svc := newTestService(repo, nil)

	interval, err := svc.Boot(context.Background(), "VLTHU_SIM01", ports.BootInfo{
		Vendor: "Volthu", Model: "SIM-1", SerialNumber: "VLTHU_SIM01", FirmwareVersion: "1.0",
	})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if interval != 60 {
		t.Errorf("interval = %d, want 60", interval)
	}
	if saved == nil {
		t.Fatal("charge point not saved")
	}
	if saved.OCPPID != "VLTHU_SIM01" || saved.Vendor != "Volthu" {
		t.Errorf("saved = %+v", saved)
	}
	if saved.Status != domain.ChargePointStatusAvailable {
		t.Errorf("status = %s, want available", saved.Status)
	}
	if saved.LastSeenAt == nil {
		t.Error("last_seen_at not set")
	}
}

func TestBootReplayIsIdempotent(t *testing.T) {
	existing := &domain.ChargePoint{OCPPID: "CP1", Vendor: "Old", Status: domain.ChargePointStatusFaulted}
	existing.ID = 7

	var saved *domain.ChargePoint
	repo := &mocks.MockChargePointRepository{
		FindByOCPPIDFunc: func(ctx context.Context, ocppID string) (*domain.ChargePoint, error) {
			return existing, nil
		},
		SaveFunc: func(ctx context.Context, cp *domain.ChargePoint) error {
			saved = cp
			return nil
		},
	}
	svc := newTestService(repo, nil)

	if _, err := svc.Boot(context.Background(), "CP1", ports.BootInfo{Vendor: "New", Model: "M"}); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if saved.ID != 7 {
		t.Errorf("replay created a new row, id = %d", saved.ID)
	}
	if saved.Vendor != "New" {
		t.Errorf("vendor = %s, metadata not overwritten", saved.Vendor)
	}
	if saved.Status != domain.ChargePointStatusAvailable {
		t.Errorf("status = %s, want available after boot", saved.Status)
	}
}

func TestHeartbeatAdvancesLastSeen(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	cp := &domain.ChargePoint{OCPPID: "CP1", LastSeenAt: &past}

	var saved *domain.ChargePoint
	repo := &mocks.MockChargePointRepository{
		FindByOCPPIDFunc: func(ctx context.Context, ocppID string) (*domain.ChargePoint, error) {
			return cp, nil
		},
		SaveFunc: func(ctx context.Context, cp *domain.ChargePoint) error {
			saved = cp
			return nil
		},
	}
	svc := newTestService(repo, nil)

	if err := svc.Heartbeat(context.Background(), "CP1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if saved == nil || saved.LastSeenAt == nil || !saved.LastSeenAt.After(past) {
		t.Error("last_seen_at did not advance")
	}
}

func TestHeartbeatUnknownChargePointIsIgnored(t *testing.T) {
	repo := &mocks.MockChargePointRepository{
		SaveFunc: func(ctx context.Context, cp *domain.ChargePoint) error {
			t.Error("unknown charge point must not be saved")
			return nil
		},
	}
	svc := newTestService(repo, nil)

	if err := svc.Heartbeat(context.Background(), "GHOST"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
}

func TestStatusNotificationApplied(t *testing.T) {
	cp := &domain.ChargePoint{OCPPID: "CP1", Status: domain.ChargePointStatusAvailable}
	cp.ID = 1

	var saved *domain.ChargePoint
	repo := &mocks.MockChargePointRepository{
		FindByOCPPIDFunc: func(ctx context.Context, ocppID string) (*domain.ChargePoint, error) {
			return cp, nil
		},
		SaveFunc: func(ctx context.Context, cp *domain.ChargePoint) error {
			saved = cp
			return nil
		},
	}
	svc := newTestService(repo, nil)

	if err := svc.StatusNotification(context.Background(), "CP1", 1, "SuspendedEV"); err != nil {
		t.Fatalf("StatusNotification: %v", err)
	}
	if saved.Status != domain.ChargePointStatusCharging {
		t.Errorf("status = %s, want charging", saved.Status)
	}
}

func TestStatusNotificationSuppressesAvailableDuringSession(t *testing.T) {
	cp := &domain.ChargePoint{OCPPID: "CP1", Status: domain.ChargePointStatusCharging}
	cp.ID = 1

	var saved *domain.ChargePoint
	repo := &mocks.MockChargePointRepository{
		FindByOCPPIDFunc: func(ctx context.Context, ocppID string) (*domain.ChargePoint, error) {
			return cp, nil
		},
		SaveFunc: func(ctx context.Context, cp *domain.ChargePoint) error {
			saved = cp
			return nil
		},
	}
	sessions := &mocks.MockSessionRepository{
		FindOpenByChargePointFunc: func(ctx context.Context, chargePointID uint) ([]domain.ChargeSession, error) {
			return []domain.ChargeSession{{ChargePointID: chargePointID}}, nil
		},
	}
	svc := newTestService(repo, sessions)

	if err := svc.StatusNotification(context.Background(), "CP1", 1, "Available"); err != nil {
		t.Fatalf("StatusNotification: %v", err)
	}
	if saved.Status != domain.ChargePointStatusCharging {
		t.Errorf("status = %s, suppression failed", saved.Status)
	}
	// Liveness still advances on the suppressed frame.
	if saved.LastSeenAt == nil {
		t.Error("last_seen_at not touched")
	}
}

func TestStatusNotificationAvailableWithoutSession(t *testing.T) {
	cp := &domain.ChargePoint{OCPPID: "CP1", Status: domain.ChargePointStatusCharging}
	cp.ID = 1

	var saved *domain.ChargePoint
	repo := &mocks.MockChargePointRepository{
		FindByOCPPIDFunc: func(ctx context.Context, ocppID string) (*domain.ChargePoint, error) {
			return cp, nil
		},
		SaveFunc: func(ctx context.Context, cp *domain.ChargePoint) error {
			saved = cp
			return nil
		},
	}
	svc := newTestService(repo, nil)

	if err := svc.StatusNotification(context.Background(), "CP1", 1, "Available"); err != nil {
		t.Fatalf("StatusNotification: %v", err)
	}
	if saved.Status != domain.ChargePointStatusAvailable {
		t.Errorf("status = %s, want available", saved.Status)
	}
}

func TestGetChargePointReadThroughCache(t *testing.T) {
	lookups := 0
	repo := &mocks.MockChargePointRepository{
		FindByIDFunc: func(ctx context.Context, id uint) (*domain.ChargePoint, error) {
			lookups++
			return &domain.ChargePoint{ID: id, OCPPID: "CP1", Status: domain.ChargePointStatusAvailable}, nil
		},
	}
	svc := newTestService(repo, nil)

	first, err := svc.GetChargePoint(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetChargePoint: %v", err)
	}
	second, err := svc.GetChargePoint(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetChargePoint (cached): %v", err)
	}
	if lookups != 1 {
		t.Errorf("repository lookups = %d, want 1 (second read from cache)", lookups)
	}
	if second.OCPPID != first.OCPPID || second.Status != first.Status {
		t.Errorf("cached read = %+v, want %+v", second, first)
	}
}

func TestBootPrimesCacheForOCPPLookup(t *testing.T) {
	booted := false
	repo := &mocks.MockChargePointRepository{
		FindByOCPPIDFunc: func(ctx context.Context, ocppID string) (*domain.ChargePoint, error) {
			if booted {
				t.Error("lookup hit the repository after boot primed the cache")
			}
			return nil, nil
		},
		SaveFunc: func(ctx context.Context, cp *domain.ChargePoint) error {
			cp.ID = 3
			return nil
		},
	}
	svc := newTestService(repo, nil)

	if _, err := svc.Boot(context.Background(), "CP1", ports.BootInfo{Vendor: "V", Model: "M"}); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	booted = true

	cp, err := svc.GetChargePointByOCPPID(context.Background(), "CP1")
	if err != nil {
		t.Fatalf("GetChargePointByOCPPID: %v", err)
	}
	if cp.ID != 3 || cp.Vendor != "V" {
		t.Errorf("cached charge point = %+v", cp)
	}
}

func TestEffectiveStatusOffline(t *testing.T) {
	svc := newTestService(nil, nil)
	now := time.Now().UTC()

	if got := svc.EffectiveStatus(&domain.ChargePoint{Status: domain.ChargePointStatusAvailable}, now); got != domain.ChargePointStatusOffline {
		t.Errorf("never seen: got %s, want offline", got)
	}

	stale := now.Add(-121 * time.Second)
	if got := svc.EffectiveStatus(&domain.ChargePoint{Status: domain.ChargePointStatusCharging, LastSeenAt: &stale}, now); got != domain.ChargePointStatusOffline {
		t.Errorf("stale: got %s, want offline", got)
	}

	fresh := now.Add(-30 * time.Second)
	if got := svc.EffectiveStatus(&domain.ChargePoint{Status: domain.ChargePointStatusCharging, LastSeenAt: &fresh}, now); got != domain.ChargePointStatusCharging {
		t.Errorf("fresh: got %s, want charging", got)
	}
}

func TestTouchNeverMovesBackwards(t *testing.T) {
	svc := newTestService(nil, nil)
	future := time.Now().UTC().Add(time.Hour)
	cp := &domain.ChargePoint{LastSeenAt: &future}

	svc.touch(cp, time.Now().UTC())
	if !cp.LastSeenAt.Equal(future) {
		t.Errorf("last_seen_at moved backwards to %v", cp.LastSeenAt)
	}
}
