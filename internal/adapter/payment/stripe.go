package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"go.uber.org/zap"

	"github.com/volthu/csms/internal/ports"
)

// signatureTolerance is the maximum allowed distance between the
// timestamp in the signature header and our clock, in either direction.
const signatureTolerance = 300 * time.Second

// checkoutWindow is how long a hosted checkout stays payable.
const checkoutWindow = 30 * time.Minute

type StripeGateway struct {
	secretKey     string
	webhookSecret string
	publicBaseURL string
	breaker       *gobreaker.CircuitBreaker
	log           *zap.Logger
}

func NewStripeGateway(secretKey, webhookSecret, publicBaseURL string, log *zap.Logger) ports.PaymentGateway {
	stripe.Key = secretKey

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "stripe-checkout",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Stripe circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &StripeGateway{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		breaker:       cb,
		log:           log,
	}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateCheckout(ctx context.Context, in ports.CheckoutInput) (*ports.CheckoutSession, error) {
	if g.secretKey == "" {
		return nil, ports.ErrProviderUnconfigured
	}

	intentID := strconv.FormatUint(uint64(in.IntentID), 10)
	expiresAt := time.Now().Add(checkoutWindow)

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(in.Currency),
					// HUF is a two-decimal currency on Stripe's wire
					// format even though nobody uses filler coins.
					UnitAmount: stripe.Int64(int64(in.AmountHUF) * 100),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("EV charging hold (station %d, connector %d)", in.ChargePointID, in.ConnectorID)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail:     stripe.String(in.Email),
		ClientReferenceID: stripe.String(intentID),
		SuccessURL:        stripe.String(g.publicBaseURL + "/payment/success?intent_id=" + intentID),
		CancelURL:         stripe.String(g.publicBaseURL + "/payment/cancelled?intent_id=" + intentID),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
	}
	params.AddMetadata("intent_id", intentID)
	params.AddMetadata("charge_point_id", strconv.FormatUint(uint64(in.ChargePointID), 10))
	params.AddMetadata("connector_id", strconv.Itoa(in.ConnectorID))
	// Retried intent creation must not mint a second checkout.
	params.SetIdempotencyKey("intent:" + intentID)
	params.Context = ctx

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return session.New(params)
	})
	if err != nil {
		g.log.Error("Failed to create checkout session",
			zap.String("intent_id", intentID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	sess := result.(*stripe.CheckoutSession)
	g.log.Info("Checkout session created",
		zap.String("intent_id", intentID),
		zap.String("checkout_session_id", sess.ID),
	)

	return &ports.CheckoutSession{
		ProviderRef: sess.ID,
		PaymentURL:  sess.URL,
		ExpiresAt:   expiresAt,
	}, nil
}

// VerifySignature checks a Stripe-Signature header against the raw
// request body. The header format is "t=<unix>,v1=<hex>[,v1=<hex>...]";
// the signed payload is "<t>.<body>".
func (g *StripeGateway) VerifySignature(payload []byte, header string, now time.Time) error {
	if g.webhookSecret == "" {
		return ports.ErrProviderUnconfigured
	}
	if header == "" {
		return ports.ErrMissingSignatureHeader
	}

	var timestamp int64
	var signatures [][]byte
	sawTimestamp := false

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return ports.ErrMalformedSignatureHeader
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ports.ErrMalformedSignatureHeader
			}
			timestamp = ts
			sawTimestamp = true
		case "v1":
			sig, err := hex.DecodeString(kv[1])
			if err != nil {
				return ports.ErrMalformedSignatureHeader
			}
			signatures = append(signatures, sig)
		}
		// Unknown schemes (v0 test-mode signatures) are ignored.
	}

	if !sawTimestamp || len(signatures) == 0 {
		return ports.ErrMalformedSignatureHeader
	}

	skew := now.Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(signatureTolerance.Seconds()) {
		return ports.ErrSignatureTimestampSkew
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ports.ErrSignatureMismatch
}

func (g *StripeGateway) ParseCheckoutCompleted(payload []byte) (*ports.CheckoutCompleted, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("stripe: parse event: %w", err)
	}

	if event.Type != "checkout.session.completed" {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("stripe: parse checkout session: %w", err)
	}

	ref := sess.Metadata["intent_id"]
	if ref == "" {
		ref = sess.ClientReferenceID
	}
	if ref == "" {
		return nil, fmt.Errorf("stripe: checkout session %s carries no intent reference", sess.ID)
	}

	id, err := strconv.ParseUint(ref, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stripe: bad intent reference %q: %w", ref, err)
	}

	return &ports.CheckoutCompleted{
		IntentID:    uint(id),
		ProviderRef: sess.ID,
	}, nil
}
