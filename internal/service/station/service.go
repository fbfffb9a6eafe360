package station

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/ports"
)

// Service tracks station identity, liveness and coarse status.
type Service struct {
	repo        ports.ChargePointRepository
	sessionRepo ports.SessionRepository
	cache       ports.Cache

	heartbeatInterval int
	offlineAfter      time.Duration
	statusTTL         time.Duration
	log               *zap.Logger
}

type Config struct {
	HeartbeatInterval int
	OfflineAfter      time.Duration
	StatusTTL         time.Duration
}

func NewService(repo ports.ChargePointRepository, sessionRepo ports.SessionRepository, cache ports.Cache, cfg Config, log *zap.Logger) ports.StationService {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 60
	}
	if cfg.OfflineAfter <= 0 {
		cfg.OfflineAfter = 120 * time.Second
	}
	return &Service{
		repo:              repo,
		sessionRepo:       sessionRepo,
		cache:             cache,
		heartbeatInterval: cfg.HeartbeatInterval,
		offlineAfter:      cfg.OfflineAfter,
		statusTTL:         cfg.StatusTTL,
		log:               log,
	}
}

func cacheKeyByID(id uint) string {
	return "cp:id:" + strconv.FormatUint(uint64(id), 10)
}

func cacheKeyByOCPPID(ocppID string) string {
	return "cp:ocpp:" + ocppID
}

// Boot upserts the station. Replays are idempotent: metadata fields are
// overwritten, status resets to available and liveness advances.
func (s *Service) Boot(ctx context.Context, ocppID string, info ports.BootInfo) (int, error) {
	cp, err := s.repo.FindByOCPPID(ctx, ocppID)
	if err != nil {
		return 0, err
	}
	if cp == nil {
		cp = &domain.ChargePoint{OCPPID: ocppID}
		s.log.Info("Registering new charge point", zap.String("charge_point_id", ocppID))
	}

	cp.Vendor = info.Vendor
	cp.Model = info.Model
	cp.SerialNumber = info.SerialNumber
	cp.FirmwareVersion = info.FirmwareVersion
	cp.Status = domain.ChargePointStatusAvailable
	s.touch(cp, time.Now().UTC())

	if err := s.repo.Save(ctx, cp); err != nil {
		return 0, err
	}
	s.cacheChargePoint(ctx, cp)

	return s.heartbeatInterval, nil
}

func (s *Service) Heartbeat(ctx context.Context, ocppID string) error {
	cp, err := s.repo.FindByOCPPID(ctx, ocppID)
	if err != nil {
		return err
	}
	if cp == nil {
		// Stations are only created through Boot; a heartbeat from an
		// unknown serial is noise.
		s.log.Warn("Heartbeat from unknown charge point", zap.String("charge_point_id", ocppID))
		return nil
	}

	s.touch(cp, time.Now().UTC())
	if err := s.repo.Save(ctx, cp); err != nil {
		return err
	}
	s.cacheChargePoint(ctx, cp)
	return nil
}

// StatusNotification stores the normalized status. Transitions to
// available are suppressed while the station has an open session, since
// some stations report Available mid-charge and that would lose the
// charging view. Liveness advances regardless.
func (s *Service) StatusNotification(ctx context.Context, ocppID string, connectorID int, rawStatus string) error {
	cp, err := s.repo.FindByOCPPID(ctx, ocppID)
	if err != nil {
		return err
	}
	if cp == nil {
		s.log.Warn("StatusNotification from unknown charge point", zap.String("charge_point_id", ocppID))
		return nil
	}

	status := domain.StatusFromOCPP(rawStatus)
	apply := true
	if status == domain.ChargePointStatusAvailable {
		open, err := s.sessionRepo.FindOpenByChargePoint(ctx, cp.ID)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			apply = false
			s.log.Debug("Suppressing available status during open session",
				zap.String("charge_point_id", ocppID),
				zap.Int("connector_id", connectorID),
			)
		}
	}

	if apply {
		cp.Status = status
	}
	s.touch(cp, time.Now().UTC())

	if err := s.repo.Save(ctx, cp); err != nil {
		return err
	}
	s.cacheChargePoint(ctx, cp)
	return nil
}

// GetChargePoint serves reads through the cache; a miss falls back to
// the repository and repopulates it. The TTL bounds staleness from
// writers that bypass the cache.
func (s *Service) GetChargePoint(ctx context.Context, id uint) (*domain.ChargePoint, error) {
	if cp := s.cachedChargePoint(ctx, cacheKeyByID(id)); cp != nil {
		return cp, nil
	}

	cp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, ports.ErrChargePointNotFound
	}
	s.cacheChargePoint(ctx, cp)
	return cp, nil
}

func (s *Service) GetChargePointByOCPPID(ctx context.Context, ocppID string) (*domain.ChargePoint, error) {
	if cp := s.cachedChargePoint(ctx, cacheKeyByOCPPID(ocppID)); cp != nil {
		return cp, nil
	}

	cp, err := s.repo.FindByOCPPID(ctx, ocppID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, ports.ErrChargePointNotFound
	}
	s.cacheChargePoint(ctx, cp)
	return cp, nil
}

func (s *Service) ListChargePoints(ctx context.Context) ([]domain.ChargePoint, error) {
	return s.repo.List(ctx)
}

// EffectiveStatus overlays the derived offline state: a station silent
// longer than the offline window reads as offline regardless of what it
// last reported.
func (s *Service) EffectiveStatus(cp *domain.ChargePoint, now time.Time) domain.ChargePointStatus {
	if cp.LastSeenAt == nil || now.Sub(*cp.LastSeenAt) > s.offlineAfter {
		return domain.ChargePointStatusOffline
	}
	return cp.Status
}

// touch advances last_seen_at, never backwards.
func (s *Service) touch(cp *domain.ChargePoint, now time.Time) {
	if cp.LastSeenAt == nil || now.After(*cp.LastSeenAt) {
		cp.LastSeenAt = &now
	}
}

// cacheChargePoint write-throughs the station under both lookup keys.
func (s *Service) cacheChargePoint(ctx context.Context, cp *domain.ChargePoint) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return
	}
	for _, key := range []string{cacheKeyByID(cp.ID), cacheKeyByOCPPID(cp.OCPPID)} {
		if err := s.cache.Set(ctx, key, data, s.statusTTL); err != nil {
			s.log.Debug("Failed to cache charge point", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *Service) cachedChargePoint(ctx context.Context, key string) *domain.ChargePoint {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return nil
	}
	var cp domain.ChargePoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return nil
	}
	return &cp
}
