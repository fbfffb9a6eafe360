package domain

import (
	"time"
)

type IntentStatus string

const (
	IntentStatusPendingPayment IntentStatus = "pending_payment"
	IntentStatusPaid           IntentStatus = "paid"
	IntentStatusExpired        IntentStatus = "expired"
	IntentStatusCancelled      IntentStatus = "cancelled"
	IntentStatusFailed         IntentStatus = "failed"
)

// ChargingIntent is the pre-payment commitment of an anonymous,
// email-identified user to a refundable hold on one station connector.
// It transitions exactly once to paid via the payment webhook.
type ChargingIntent struct {
	ID            uint         `json:"id" gorm:"primaryKey"`
	ChargePointID uint         `json:"charge_point_id" gorm:"not null;index"`
	ChargePoint   *ChargePoint `json:"-" gorm:"foreignKey:ChargePointID"`
	ConnectorID   int          `json:"connector_id" gorm:"not null;default:1"`

	AnonymousEmail string       `json:"anonymous_email" gorm:"size:255;not null;index"`
	Status         IntentStatus `json:"status" gorm:"size:32;not null;default:pending_payment;index"`

	HoldAmountHUF int    `json:"hold_amount_huf" gorm:"not null;default:5000"`
	Currency      string `json:"currency" gorm:"size:8;default:huf"`

	// Provider-agnostic fields; stripe today, other providers later.
	PaymentProvider    string `json:"payment_provider" gorm:"size:32;index"`
	PaymentProviderRef string `json:"payment_provider_ref" gorm:"size:255;index"`

	CancelReason string `json:"cancel_reason,omitempty" gorm:"size:64"`
	LastError    string `json:"last_error,omitempty" gorm:"size:255"`

	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChargingIntent) TableName() string { return "charging_intents" }

// Expired reports whether the intent's payment window has passed.
func (i *ChargingIntent) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
