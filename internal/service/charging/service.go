package charging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/volthu/csms/internal/adapter/queue"
	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/observability/telemetry"
	"github.com/volthu/csms/internal/ports"
)

// Thresholds for the "actually charging" sanity guard on telemetry.
const (
	chargingPowerThresholdW   = 10.0
	chargingCurrentThresholdA = 0.1
)

// Service owns the charging transaction state machine between
// StartTransaction and StopTransaction, plus the operator-facing
// remote start/stop bridge.
type Service struct {
	cpRepo      ports.ChargePointRepository
	sessionRepo ports.SessionRepository
	sampleRepo  ports.MeterSampleRepository
	commander   ports.RemoteCommander
	mq          queue.MessageQueue

	pricePerKWhHUF float64
	log            *zap.Logger
}

func NewService(
	cpRepo ports.ChargePointRepository,
	sessionRepo ports.SessionRepository,
	sampleRepo ports.MeterSampleRepository,
	commander ports.RemoteCommander,
	mq queue.MessageQueue,
	pricePerKWhHUF float64,
	log *zap.Logger,
) ports.ChargingService {
	return &Service{
		cpRepo:         cpRepo,
		sessionRepo:    sessionRepo,
		sampleRepo:     sampleRepo,
		commander:      commander,
		mq:             mq,
		pricePerKWhHUF: pricePerKWhHUF,
		log:            log,
	}
}

// StartTransaction reuses an open session pre-created by the payment
// bridge when one exists, otherwise creates one. Either way the session
// primary key becomes the station-facing transaction id so the later
// StopTransaction echo always correlates.
func (s *Service) StartTransaction(ctx context.Context, ocppID string, in ports.StartTransactionInput) (int, error) {
	cp, err := s.cpRepo.FindByOCPPID(ctx, ocppID)
	if err != nil {
		return 0, err
	}
	if cp == nil {
		return 0, fmt.Errorf("start transaction from unknown charge point %s", ocppID)
	}

	now := time.Now().UTC()
	connector := 1
	if in.ConnectorID != nil {
		connector = *in.ConnectorID
	}

	session, err := s.findReusableSession(ctx, cp.ID, connector)
	if err != nil {
		return 0, err
	}

	created := false
	if session != nil {
		if session.ConnectorID == nil {
			session.ConnectorID = &connector
		}
		if session.UserTag == nil && in.IDTag != "" {
			tag := in.IDTag
			session.UserTag = &tag
		}
		if session.StartedAt.IsZero() {
			session.StartedAt = startedAt(in.Timestamp, now)
		}
		if session.MeterStartWh == nil {
			session.MeterStartWh = in.MeterStartWh
		}
	} else {
		created = true
		session = &domain.ChargeSession{
			ChargePointID: cp.ID,
			ConnectorID:   &connector,
			StartedAt:     startedAt(in.Timestamp, now),
			MeterStartWh:  in.MeterStartWh,
		}
		if in.IDTag != "" {
			tag := in.IDTag
			session.UserTag = &tag
		}
		if err := s.sessionRepo.Save(ctx, session); err != nil {
			return 0, err
		}
	}

	if session.OCPPTransactionID == nil {
		txID := strconv.FormatUint(uint64(session.ID), 10)
		session.OCPPTransactionID = &txID
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return 0, err
	}

	cp.Status = domain.ChargePointStatusCharging
	cp.LastSeenAt = &now
	if err := s.cpRepo.Save(ctx, cp); err != nil {
		return 0, err
	}

	if created {
		telemetry.ActiveChargingSessions.Inc()
		s.publish(queue.SubjectSessionStarted, session)
	}

	txID, err := strconv.Atoi(*session.OCPPTransactionID)
	if err != nil {
		txID = int(session.ID)
	}
	return txID, nil
}

// findReusableSession implements the open-session match: exact
// connector, then connector 1 when the station said 0, then any open
// session on the station.
func (s *Service) findReusableSession(ctx context.Context, chargePointID uint, connector int) (*domain.ChargeSession, error) {
	open, err := s.sessionRepo.FindOpenByChargePoint(ctx, chargePointID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	for i := range open {
		if open[i].ConnectorID != nil && *open[i].ConnectorID == connector {
			return &open[i], nil
		}
	}
	if connector == 0 {
		for i := range open {
			if open[i].ConnectorID != nil && *open[i].ConnectorID == 1 {
				return &open[i], nil
			}
		}
	}
	return &open[0], nil
}

func (s *Service) StopTransaction(ctx context.Context, ocppID string, in ports.StopTransactionInput) error {
	cp, err := s.cpRepo.FindByOCPPID(ctx, ocppID)
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("stop transaction from unknown charge point %s", ocppID)
	}

	session, err := s.findSessionForStop(ctx, cp.ID, in.TransactionID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("no open session matches transaction id %q on %s", in.TransactionID, ocppID)
	}

	now := time.Now().UTC()
	finishedAt := now
	if in.Timestamp != nil {
		finishedAt = *in.Timestamp
	}
	if finishedAt.Before(session.StartedAt) {
		finishedAt = session.StartedAt
	}
	session.FinishedAt = &finishedAt

	if in.MeterStopWh != nil {
		session.MeterStopWh = in.MeterStopWh
	}

	energy, err := s.computeEnergy(ctx, session, in.MeterStopWh)
	if err != nil {
		return err
	}
	session.EnergyKWh = energy
	session.CostHUF = s.cost(energy)

	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return err
	}

	cp.Status = domain.ChargePointStatusAvailable
	cp.LastSeenAt = &now
	if err := s.cpRepo.Save(ctx, cp); err != nil {
		return err
	}

	telemetry.ActiveChargingSessions.Dec()
	if energy != nil {
		telemetry.EnergyDeliveredTotal.Add(*energy)
	}
	s.publish(queue.SubjectSessionFinished, session)

	return nil
}

// findSessionForStop tries the assigned transaction id first, then the
// raw value as a session primary key. Some stations echo the integer we
// handed back, others mangle it.
func (s *Service) findSessionForStop(ctx context.Context, chargePointID uint, txID string) (*domain.ChargeSession, error) {
	session, err := s.sessionRepo.FindOpenByTransactionID(ctx, chargePointID, txID)
	if err != nil || session != nil {
		return session, err
	}

	pk, convErr := strconv.ParseUint(txID, 10, 64)
	if convErr != nil {
		return nil, nil
	}
	session, err = s.sessionRepo.FindByID(ctx, uint(pk))
	if err != nil {
		return nil, err
	}
	if session == nil || session.ChargePointID != chargePointID || !session.Open() {
		return nil, nil
	}
	return session, nil
}

// computeEnergy prefers the meter delta. When meter_start_wh is absent
// it falls back to the first and last cumulative readings bound to the
// session, taking meterStop as the terminal value when present.
// Negative arithmetic leaves energy null; a lying meter is not a reason
// to fail the stop.
func (s *Service) computeEnergy(ctx context.Context, session *domain.ChargeSession, meterStop *float64) (*float64, error) {
	var startWh, stopWh *float64

	if session.MeterStartWh != nil && session.MeterStopWh != nil {
		startWh = session.MeterStartWh
		stopWh = session.MeterStopWh
	} else {
		samples, err := s.sampleRepo.FindBySession(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		startWh = session.MeterStartWh
		for i := range samples {
			if samples[i].EnergyWhTotal == nil {
				continue
			}
			if startWh == nil {
				startWh = samples[i].EnergyWhTotal
			}
			stopWh = samples[i].EnergyWhTotal
		}
		if meterStop != nil {
			stopWh = meterStop
		}
	}

	if startWh == nil || stopWh == nil {
		return nil, nil
	}

	energy := (*stopWh - *startWh) / 1000
	if energy < 0 {
		s.log.Warn("Negative energy computed, leaving null",
			zap.Uint("session_id", session.ID),
			zap.Float64("meter_start_wh", *startWh),
			zap.Float64("meter_stop_wh", *stopWh),
		)
		return nil, nil
	}
	return &energy, nil
}

func (s *Service) cost(energyKWh *float64) *float64 {
	if energyKWh == nil || s.pricePerKWhHUF <= 0 {
		return nil
	}
	c := *energyKWh * s.pricePerKWhHUF
	return &c
}

// RecordMeterValues binds a telemetry batch to the most plausible open
// session, persists one sample per entry and keeps the session's live
// progress current.
func (s *Service) RecordMeterValues(ctx context.Context, ocppID string, in ports.MeterValuesInput) error {
	cp, err := s.cpRepo.FindByOCPPID(ctx, ocppID)
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("meter values from unknown charge point %s", ocppID)
	}

	session, err := s.bindSession(ctx, cp.ID, in)
	if err != nil {
		return err
	}

	var lastEnergy *float64
	charging := false
	for _, reading := range in.Readings {
		sample := &domain.MeterSample{
			ChargePointID: cp.ID,
			ConnectorID:   in.ConnectorID,
			Timestamp:     reading.Timestamp,
			EnergyWhTotal: reading.EnergyWhTotal,
			PowerW:        reading.PowerW,
			CurrentA:      reading.CurrentA,
		}
		if session != nil {
			sample.SessionID = &session.ID
		}
		if err := s.sampleRepo.Save(ctx, sample); err != nil {
			return err
		}

		if reading.EnergyWhTotal != nil {
			lastEnergy = reading.EnergyWhTotal
		}
		if (reading.PowerW != nil && *reading.PowerW > chargingPowerThresholdW) ||
			(reading.CurrentA != nil && *reading.CurrentA > chargingCurrentThresholdA) {
			charging = true
		}
	}

	if session != nil && lastEnergy != nil {
		session.MeterStopWh = lastEnergy
		if session.MeterStartWh != nil {
			delta := (*lastEnergy - *session.MeterStartWh) / 1000
			if delta >= 0 {
				session.EnergyKWh = &delta
				session.CostHUF = s.cost(&delta)
			}
		}
		if err := s.sessionRepo.Save(ctx, session); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	cp.LastSeenAt = &now
	if charging {
		cp.Status = domain.ChargePointStatusCharging
	}
	return s.cpRepo.Save(ctx, cp)
}

// bindSession resolves the telemetry batch to a session: transaction
// id, then (station, connector), then connector 1 when the station sent
// 0, then any open session.
func (s *Service) bindSession(ctx context.Context, chargePointID uint, in ports.MeterValuesInput) (*domain.ChargeSession, error) {
	if in.TransactionID != nil {
		session, err := s.sessionRepo.FindOpenByTransactionID(ctx, chargePointID, strconv.Itoa(*in.TransactionID))
		if err != nil {
			return nil, err
		}
		if session != nil {
			return session, nil
		}
	}

	open, err := s.sessionRepo.FindOpenByChargePoint(ctx, chargePointID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	if in.ConnectorID != nil {
		for i := range open {
			if open[i].ConnectorID != nil && *open[i].ConnectorID == *in.ConnectorID {
				return &open[i], nil
			}
		}
		if *in.ConnectorID == 0 {
			for i := range open {
				if open[i].ConnectorID != nil && *open[i].ConnectorID == 1 {
					return &open[i], nil
				}
			}
		}
	}
	return &open[0], nil
}

func (s *Service) RemoteStartSession(ctx context.Context, in ports.RemoteStartInput) error {
	cp, err := s.cpRepo.FindByID(ctx, in.ChargePointID)
	if err != nil {
		return err
	}
	if cp == nil {
		return ports.ErrChargePointNotFound
	}

	connector := in.ConnectorID
	if connector <= 0 {
		connector = 1
	}

	active, err := s.sessionRepo.FindActive(ctx, cp.ID, &connector)
	if err != nil {
		return err
	}
	if active != nil {
		return ports.ErrActiveSessionExists
	}

	tag := in.UserTag
	if tag == "" {
		tag = "ANON"
	}

	result, err := s.commander.RemoteStartTransaction(ctx, cp.OCPPID, connector, tag)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrRemoteStartFailed, err)
	}
	if !result.Accepted() {
		return ports.ErrRemoteStartRejected
	}

	// Pre-create the pending session; the station's StartTransaction
	// reuses it and fills in the meter data.
	session := &domain.ChargeSession{
		ChargePointID: cp.ID,
		ConnectorID:   &connector,
		UserTag:       &tag,
		StartedAt:     time.Now().UTC(),
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return err
	}

	telemetry.ActiveChargingSessions.Inc()
	s.publish(queue.SubjectSessionStarted, session)
	return nil
}

func (s *Service) RemoteStopSession(ctx context.Context, sessionID uint) error {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ports.ErrSessionNotFound
	}
	if !session.Open() {
		return ports.ErrSessionAlreadyFinished
	}
	if session.OCPPTransactionID == nil {
		return ports.ErrMissingOCPPTransactionID
	}

	cp, err := s.cpRepo.FindByID(ctx, session.ChargePointID)
	if err != nil {
		return err
	}
	if cp == nil {
		return ports.ErrChargePointNotFound
	}

	txID, err := strconv.Atoi(*session.OCPPTransactionID)
	if err != nil {
		txID = int(session.ID)
	}

	result, err := s.commander.RemoteStopTransaction(ctx, cp.OCPPID, txID)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrRemoteStopFailed, err)
	}
	if !result.Accepted() {
		return ports.ErrRemoteStopRejected
	}
	// Finalization happens when the station's StopTransaction arrives.
	return nil
}

func (s *Service) GetSession(ctx context.Context, id uint) (*domain.ChargeSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ports.ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context, f ports.SessionFilter) ([]domain.ChargeSession, error) {
	return s.sessionRepo.List(ctx, f)
}

func (s *Service) ActiveSession(ctx context.Context, chargePointID uint, connectorID *int) (*domain.ChargeSession, error) {
	return s.sessionRepo.FindActive(ctx, chargePointID, connectorID)
}

func (s *Service) publish(subject string, session *domain.ChargeSession) {
	if s.mq == nil {
		return
	}
	data, err := queue.Wrap(subject, session)
	if err != nil {
		return
	}
	if err := s.mq.Publish(subject, data); err != nil {
		s.log.Warn("Failed to publish session event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

func startedAt(ts *time.Time, fallback time.Time) time.Time {
	if ts != nil {
		return *ts
	}
	return fallback
}
