package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/volthu/csms/internal/ports"
)

const testWebhookSecret = "whsec_test"

func newTestGateway() *StripeGateway {
	g := NewStripeGateway("sk_test", testWebhookSecret, "https://charge.example.com/", zap.NewNop())
	return g.(*StripeGateway)
}

func signPayload(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureValid(t *testing.T) {
	g := newTestGateway()
	now := time.Now()
	payload := []byte(`{"type":"checkout.session.completed"}`)
	sig := signPayload(testWebhookSecret, now.Unix(), payload)

	header := "t=" + strconv.FormatInt(now.Unix(), 10) + ",v1=" + sig
	if err := g.VerifySignature(payload, header, now); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifySignatureIgnoresUnknownSchemes(t *testing.T) {
	g := newTestGateway()
	now := time.Now()
	payload := []byte(`{}`)
	sig := signPayload(testWebhookSecret, now.Unix(), payload)

	header := "t=" + strconv.FormatInt(now.Unix(), 10) + ",v0=not-hex-at-all,v1=" + sig
	if err := g.VerifySignature(payload, header, now); err != nil {
		t.Fatalf("v0 scheme must be ignored: %v", err)
	}
}

func TestVerifySignatureMissingHeader(t *testing.T) {
	g := newTestGateway()
	if err := g.VerifySignature([]byte(`{}`), "", time.Now()); !errors.Is(err, ports.ErrMissingSignatureHeader) {
		t.Fatalf("error = %v, want ErrMissingSignatureHeader", err)
	}
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	g := newTestGateway()
	now := time.Now()

	for _, header := range []string{
		"garbage",
		"t=notanumber,v1=abcd",
		"t=" + strconv.FormatInt(now.Unix(), 10) + ",v1=nothex",
		"t=" + strconv.FormatInt(now.Unix(), 10), // no signature at all
		"v1=abcd",                                // no timestamp
	} {
		if err := g.VerifySignature([]byte(`{}`), header, now); !errors.Is(err, ports.ErrMalformedSignatureHeader) {
			t.Errorf("header %q: error = %v, want ErrMalformedSignatureHeader", header, err)
		}
	}
}

func TestVerifySignatureTimestampSkew(t *testing.T) {
	g := newTestGateway()
	now := time.Now()
	payload := []byte(`{}`)

	for _, offset := range []time.Duration{-301 * time.Second, 301 * time.Second} {
		ts := now.Add(offset).Unix()
		header := "t=" + strconv.FormatInt(ts, 10) + ",v1=" + signPayload(testWebhookSecret, ts, payload)
		if err := g.VerifySignature(payload, header, now); !errors.Is(err, ports.ErrSignatureTimestampSkew) {
			t.Errorf("offset %v: error = %v, want ErrSignatureTimestampSkew", offset, err)
		}
	}

	// Exactly at the tolerance boundary still passes.
	ts := now.Add(-300 * time.Second).Unix()
	header := "t=" + strconv.FormatInt(ts, 10) + ",v1=" + signPayload(testWebhookSecret, ts, payload)
	if err := g.VerifySignature(payload, header, now); err != nil {
		t.Errorf("boundary skew rejected: %v", err)
	}
}

func TestVerifySignatureMismatch(t *testing.T) {
	g := newTestGateway()
	now := time.Now()
	payload := []byte(`{"amount":5000}`)

	wrong := signPayload("whsec_other", now.Unix(), payload)
	header := "t=" + strconv.FormatInt(now.Unix(), 10) + ",v1=" + wrong
	if err := g.VerifySignature(payload, header, now); !errors.Is(err, ports.ErrSignatureMismatch) {
		t.Fatalf("error = %v, want ErrSignatureMismatch", err)
	}

	// A tampered body fails against a signature for the original.
	sig := signPayload(testWebhookSecret, now.Unix(), payload)
	header = "t=" + strconv.FormatInt(now.Unix(), 10) + ",v1=" + sig
	if err := g.VerifySignature([]byte(`{"amount":9000}`), header, now); !errors.Is(err, ports.ErrSignatureMismatch) {
		t.Fatalf("tampered body: error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifySignatureUnconfigured(t *testing.T) {
	g := NewStripeGateway("sk_test", "", "https://charge.example.com", zap.NewNop())
	err := g.VerifySignature([]byte(`{}`), "t=1,v1=aa", time.Now())
	if !errors.Is(err, ports.ErrProviderUnconfigured) {
		t.Fatalf("error = %v, want ErrProviderUnconfigured", err)
	}
}

func TestParseCheckoutCompleted(t *testing.T) {
	g := newTestGateway()

	payload := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_123", "metadata": {"intent_id": "42"}}}
	}`)
	completed, err := g.ParseCheckoutCompleted(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if completed == nil || completed.IntentID != 42 || completed.ProviderRef != "cs_123" {
		t.Errorf("completed = %+v", completed)
	}
}

func TestParseCheckoutCompletedClientReferenceFallback(t *testing.T) {
	g := newTestGateway()

	payload := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_456", "client_reference_id": "7"}}
	}`)
	completed, err := g.ParseCheckoutCompleted(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if completed == nil || completed.IntentID != 7 {
		t.Errorf("completed = %+v", completed)
	}
}

func TestParseCheckoutCompletedIgnoresOtherEvents(t *testing.T) {
	g := newTestGateway()

	completed, err := g.ParseCheckoutCompleted([]byte(`{"type":"payment_intent.succeeded","data":{"object":{}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if completed != nil {
		t.Errorf("completed = %+v, want nil for ignored event type", completed)
	}
}

func TestParseCheckoutCompletedErrors(t *testing.T) {
	g := newTestGateway()

	if _, err := g.ParseCheckoutCompleted([]byte(`not json`)); err == nil {
		t.Error("invalid json accepted")
	}
	noRef := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_789"}}}`)
	if _, err := g.ParseCheckoutCompleted(noRef); err == nil {
		t.Error("session without intent reference accepted")
	}
}
