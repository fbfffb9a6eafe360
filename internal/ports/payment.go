package ports

import (
	"context"
	"errors"
	"time"
)

// Webhook signature failures. Each maps to its own error sub-code on the
// HTTP surface, so handlers can tell operators exactly what was wrong
// with the header.
var (
	ErrMissingSignatureHeader   = errors.New("missing signature header")
	ErrMalformedSignatureHeader = errors.New("malformed signature header")
	ErrSignatureTimestampSkew   = errors.New("signature timestamp out of tolerance")
	ErrSignatureMismatch        = errors.New("signature mismatch")
)

// ErrProviderUnconfigured means the gateway has no credentials; callers
// surface it as a 503 rather than attempting the call.
var ErrProviderUnconfigured = errors.New("payment provider not configured")

// CheckoutInput carries everything the gateway needs to open a hosted
// checkout for one charging intent.
type CheckoutInput struct {
	IntentID      uint
	ChargePointID uint
	ConnectorID   int
	Email         string
	AmountHUF     int
	Currency      string
}

type CheckoutSession struct {
	ProviderRef string
	PaymentURL  string
	ExpiresAt   time.Time
}

// CheckoutCompleted is the normalized payload of a completed-checkout
// webhook event, after signature verification and parsing.
type CheckoutCompleted struct {
	IntentID    uint
	ProviderRef string
}

type PaymentGateway interface {
	Name() string
	CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutSession, error)
	// VerifySignature checks the raw body against the provider's
	// signature header and returns one of the sentinel errors above.
	VerifySignature(payload []byte, header string, now time.Time) error
	// ParseCheckoutCompleted returns (nil, nil) for event types the
	// bridge does not care about.
	ParseCheckoutCompleted(payload []byte) (*CheckoutCompleted, error)
}
