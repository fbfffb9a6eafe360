package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/ports"
	"github.com/volthu/csms/pkg/config"
)

// Provider is the raw delivery backend behind the service.
type Provider interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service sends the stop-code mail. It is the only transactional mail
// in the system; anything richer belongs in a real notification
// pipeline.
type Service struct {
	provider Provider
	log      *zap.Logger
}

func NewService(cfg config.EmailConfig, log *zap.Logger) (ports.EmailSender, error) {
	s := &Service{log: log}

	switch cfg.Provider {
	case "sendgrid":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("sendgrid api key is required")
		}
		s.provider = NewSendGridProvider(cfg.APIKey, cfg.From, cfg.FromName)
	case "", "log":
		// No delivery backend configured. Codes are still usable
		// through operator channels; log at debug so production setups
		// without mail do not leak secrets at default level.
		s.provider = nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}

	return s, nil
}

func (s *Service) SendStopCode(ctx context.Context, to, code string, session *domain.ChargeSession) error {
	if s.provider == nil {
		s.log.Debug("Email delivery disabled, stop code not sent",
			zap.Uint("session_id", session.ID),
		)
		return nil
	}

	subject := "Your charging session stop code"
	body := fmt.Sprintf(
		"Your charging session has started.\n\n"+
			"Stop code: %s\n\n"+
			"Use this code on the charging page to end your session. "+
			"Keep it private; anyone with the code can stop the charge.\n",
		code,
	)

	if err := s.provider.Send(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send stop code: %w", err)
	}

	s.log.Info("Stop code delivered", zap.Uint("session_id", session.ID))
	return nil
}
