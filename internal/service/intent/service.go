package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/volthu/csms/internal/adapter/queue"
	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/observability/telemetry"
	"github.com/volthu/csms/internal/ports"
)

const (
	// paymentWindow is how long an intent stays payable.
	paymentWindow = 15 * time.Minute

	// Hold amount bounds in HUF.
	minHoldHUF     = 1000
	maxHoldHUF     = 25000
	defaultHoldHUF = 5000

	// anonymousIDTag is presented to stations on remote start; in the
	// pay-first flow authorization already happened at checkout.
	anonymousIDTag = "ANON"
)

// Service is the payment bridge: it mints intents, turns completed
// checkouts into pre-bound sessions and kicks the station, and redeems
// stop codes.
type Service struct {
	cpRepo      ports.ChargePointRepository
	intentRepo  ports.IntentRepository
	sessionRepo ports.SessionRepository
	gateway     ports.PaymentGateway
	commander   ports.RemoteCommander
	charging    ports.ChargingService
	email       ports.EmailSender
	mq          queue.MessageQueue

	currency string
	log      *zap.Logger
}

func NewService(
	cpRepo ports.ChargePointRepository,
	intentRepo ports.IntentRepository,
	sessionRepo ports.SessionRepository,
	gateway ports.PaymentGateway,
	commander ports.RemoteCommander,
	charging ports.ChargingService,
	email ports.EmailSender,
	mq queue.MessageQueue,
	currency string,
	log *zap.Logger,
) ports.IntentService {
	if currency == "" {
		currency = "huf"
	}
	return &Service{
		cpRepo:      cpRepo,
		intentRepo:  intentRepo,
		sessionRepo: sessionRepo,
		gateway:     gateway,
		commander:   commander,
		charging:    charging,
		email:       email,
		mq:          mq,
		currency:    currency,
		log:         log,
	}
}

func (s *Service) CreateIntent(ctx context.Context, in ports.CreateIntentInput) (*ports.CreateIntentResult, error) {
	hold := in.HoldAmountHUF
	if hold == 0 {
		hold = defaultHoldHUF
	}
	if hold < minHoldHUF || hold > maxHoldHUF {
		return nil, ports.ErrInvalidHoldAmount
	}

	connector := in.ConnectorID
	if connector <= 0 {
		connector = 1
	}

	cp, err := s.cpRepo.FindByID(ctx, in.ChargePointID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, ports.ErrChargePointNotFound
	}
	if cp.Status != domain.ChargePointStatusAvailable {
		return nil, ports.ErrChargePointUnavailable
	}

	now := time.Now().UTC()

	// One non-terminal intent per connector. A stale one that ran out
	// its payment window is expired in passing.
	pending, err := s.intentRepo.FindPending(ctx, cp.ID, connector)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		if !pending.Expired(now) {
			return nil, ports.ErrChargePointUnavailable
		}
		pending.Status = domain.IntentStatusExpired
		if err := s.intentRepo.Save(ctx, pending); err != nil {
			return nil, err
		}
	}

	intent := &domain.ChargingIntent{
		ChargePointID:  cp.ID,
		ConnectorID:    connector,
		AnonymousEmail: strings.TrimSpace(in.Email),
		Status:         domain.IntentStatusPendingPayment,
		HoldAmountHUF:  hold,
		Currency:       s.currency,
		ExpiresAt:      now.Add(paymentWindow),
	}
	if err := s.intentRepo.Save(ctx, intent); err != nil {
		return nil, err
	}

	checkout, err := s.gateway.CreateCheckout(ctx, ports.CheckoutInput{
		IntentID:      intent.ID,
		ChargePointID: cp.ID,
		ConnectorID:   connector,
		Email:         intent.AnonymousEmail,
		AmountHUF:     hold,
		Currency:      s.currency,
	})
	if err != nil {
		intent.Status = domain.IntentStatusFailed
		intent.LastError = truncate(err.Error(), 255)
		if saveErr := s.intentRepo.Save(ctx, intent); saveErr != nil {
			s.log.Error("Failed to mark intent failed", zap.Error(saveErr))
		}
		return nil, fmt.Errorf("%w: %v", ports.ErrCheckoutCreateFailed, err)
	}

	intent.PaymentProvider = s.gateway.Name()
	intent.PaymentProviderRef = checkout.ProviderRef
	if err := s.intentRepo.Save(ctx, intent); err != nil {
		return nil, err
	}

	s.log.Info("Charging intent created",
		zap.Uint("intent_id", intent.ID),
		zap.Uint("charge_point_id", cp.ID),
		zap.Int("connector_id", connector),
	)

	return &ports.CreateIntentResult{
		Intent:     intent,
		PaymentURL: checkout.PaymentURL,
	}, nil
}

// ProcessStripeWebhook verifies, parses and applies one webhook
// delivery. Everything past signature verification is drop-don't-fail:
// the provider retries on non-2xx, and retries of already-applied
// events must stay harmless.
func (s *Service) ProcessStripeWebhook(ctx context.Context, payload []byte, sigHeader string, now time.Time) error {
	if err := s.gateway.VerifySignature(payload, sigHeader, now); err != nil {
		telemetry.StripeWebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		return err
	}

	completed, err := s.gateway.ParseCheckoutCompleted(payload)
	if err != nil {
		telemetry.StripeWebhookEventsTotal.WithLabelValues("dropped").Inc()
		s.log.Warn("Dropping unparseable webhook event", zap.Error(err))
		return nil
	}
	if completed == nil {
		telemetry.StripeWebhookEventsTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	intent, err := s.intentRepo.FindByID(ctx, completed.IntentID)
	if err != nil {
		return err
	}
	if intent == nil {
		telemetry.StripeWebhookEventsTotal.WithLabelValues("dropped").Inc()
		s.log.Warn("Webhook references unknown intent", zap.Uint("intent_id", completed.IntentID))
		return nil
	}

	if intent.Status == domain.IntentStatusPendingPayment && intent.Expired(now) {
		intent.Status = domain.IntentStatusExpired
		if err := s.intentRepo.Save(ctx, intent); err != nil {
			return err
		}
		telemetry.StripeWebhookEventsTotal.WithLabelValues("expired").Inc()
		s.log.Info("Payment arrived after intent expiry", zap.Uint("intent_id", intent.ID))
		return nil
	}

	// Paid transitions only out of pending_payment. A delivery for an
	// intent already expired, failed or cancelled must not resurrect it;
	// the 30-minute checkout window outlives the 15-minute intent window,
	// so late completions for terminal intents do arrive.
	if intent.Status != domain.IntentStatusPendingPayment && intent.Status != domain.IntentStatusPaid {
		telemetry.StripeWebhookEventsTotal.WithLabelValues("dropped").Inc()
		s.log.Warn("Dropping payment for terminal intent",
			zap.Uint("intent_id", intent.ID),
			zap.String("status", string(intent.Status)),
		)
		return nil
	}

	// Idempotency: the provider may redeliver arbitrarily; one session
	// per intent, ever.
	existing, err := s.sessionRepo.FindByIntentID(ctx, intent.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		telemetry.StripeWebhookEventsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	intent.Status = domain.IntentStatusPaid
	if intent.PaymentProviderRef == "" {
		intent.PaymentProviderRef = completed.ProviderRef
	}
	if err := s.intentRepo.Save(ctx, intent); err != nil {
		return err
	}

	plaintext, hash, err := generateStopCode()
	if err != nil {
		return err
	}

	email := intent.AnonymousEmail
	session := &domain.ChargeSession{
		ChargePointID:  intent.ChargePointID,
		ConnectorID:    &intent.ConnectorID,
		StartedAt:      now,
		AnonymousEmail: &email,
		IntentID:       &intent.ID,
		StopCodeHash:   &hash,
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return err
	}

	telemetry.ActiveChargingSessions.Inc()
	telemetry.StripeWebhookEventsTotal.WithLabelValues("completed").Inc()
	s.publish(queue.SubjectIntentPaid, intent)
	s.publish(queue.SubjectSessionStarted, session)

	s.log.Info("Intent paid, session pre-created",
		zap.Uint("intent_id", intent.ID),
		zap.Uint("session_id", session.ID),
	)

	s.deliverStopCode(ctx, email, plaintext, session)
	s.remoteStart(ctx, intent)

	return nil
}

// deliverStopCode sends the plaintext out of band. Delivery failure is
// logged, never fatal; the payment already happened.
func (s *Service) deliverStopCode(ctx context.Context, to, code string, session *domain.ChargeSession) {
	if s.email == nil {
		return
	}
	if err := s.email.SendStopCode(ctx, to, code, session); err != nil {
		s.log.Error("Failed to deliver stop code",
			zap.Uint("session_id", session.ID),
			zap.Error(err),
		)
	}
}

// remoteStart kicks the station. If the call fails or the station
// refuses, the session stays and the payment is considered captured;
// refunds are an operational flow, not ours.
func (s *Service) remoteStart(ctx context.Context, intent *domain.ChargingIntent) {
	cp, err := s.cpRepo.FindByID(ctx, intent.ChargePointID)
	if err != nil || cp == nil {
		s.log.Error("Cannot resolve charge point for remote start",
			zap.Uint("intent_id", intent.ID),
			zap.Error(err),
		)
		return
	}

	result, err := s.commander.RemoteStartTransaction(ctx, cp.OCPPID, intent.ConnectorID, anonymousIDTag)
	if err != nil {
		intent.LastError = truncate(err.Error(), 255)
		if saveErr := s.intentRepo.Save(ctx, intent); saveErr != nil {
			s.log.Error("Failed to record remote start error", zap.Error(saveErr))
		}
		s.log.Warn("Remote start failed after payment",
			zap.Uint("intent_id", intent.ID),
			zap.Error(err),
		)
		return
	}
	if !result.Accepted() {
		intent.LastError = "remote start rejected: " + result.Status
		if saveErr := s.intentRepo.Save(ctx, intent); saveErr != nil {
			s.log.Error("Failed to record remote start rejection", zap.Error(saveErr))
		}
		s.log.Warn("Station rejected remote start after payment",
			zap.Uint("intent_id", intent.ID),
			zap.String("status", result.Status),
		)
	}
}

// RedeemStopCode locates the caller's open session by email and
// constant-time hash match, then drives the remote stop.
func (s *Service) RedeemStopCode(ctx context.Context, email, code string) error {
	sessions, err := s.sessionRepo.FindOpenByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}

	var match *domain.ChargeSession
	for i := range sessions {
		if sessions[i].StopCodeHash != nil && matchStopCode(code, *sessions[i].StopCodeHash) {
			match = &sessions[i]
			break
		}
	}
	if match == nil {
		return ports.ErrStopCodeInvalid
	}

	return s.charging.RemoteStopSession(ctx, match.ID)
}

func (s *Service) publish(subject string, v interface{}) {
	if s.mq == nil {
		return
	}
	data, err := queue.Wrap(subject, v)
	if err != nil {
		return
	}
	if err := s.mq.Publish(subject, data); err != nil {
		s.log.Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
