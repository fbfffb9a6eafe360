package domain

import (
	"time"
)

// ChargeSession is one charging transaction. OCPPTransactionID is the
// station-facing handle echoed back in StopTransaction; it is assigned
// from the session's own primary key so the echo always correlates.
type ChargeSession struct {
	ID            uint         `json:"id" gorm:"primaryKey"`
	ChargePointID uint         `json:"charge_point_id" gorm:"not null;index"`
	ChargePoint   *ChargePoint `json:"-" gorm:"foreignKey:ChargePointID"`

	ConnectorID       *int    `json:"connector_id"`
	OCPPTransactionID *string `json:"ocpp_transaction_id" gorm:"column:ocpp_transaction_id;uniqueIndex"`
	UserTag           *string `json:"user_tag"`

	StartedAt  time.Time  `json:"started_at" gorm:"not null"`
	FinishedAt *time.Time `json:"finished_at"`

	MeterStartWh *float64 `json:"meter_start_wh"`
	MeterStopWh  *float64 `json:"meter_stop_wh"`
	EnergyKWh    *float64 `json:"energy_kwh"`
	CostHUF      *float64 `json:"cost_huf" gorm:"column:cost_huf"`

	// Anonymous ownership: exactly one of intent or user tag identifies
	// the owner. Only the stop-code hash is ever persisted.
	AnonymousEmail *string `json:"anonymous_email" gorm:"size:255"`
	IntentID       *uint   `json:"intent_id"`
	StopCodeHash   *string `json:"-" gorm:"size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChargeSession) TableName() string { return "charge_sessions" }

// Open reports whether the session has not been finalized yet.
func (s *ChargeSession) Open() bool { return s.FinishedAt == nil }

// MeterSample is one telemetry record from a MeterValues frame.
// Append-only; the session link stays optional (orphan samples are kept).
type MeterSample struct {
	ID            uint  `json:"id" gorm:"primaryKey"`
	ChargePointID uint  `json:"charge_point_id" gorm:"not null;index"`
	SessionID     *uint `json:"session_id" gorm:"index"`
	ConnectorID   *int  `json:"connector_id"`

	Timestamp time.Time `json:"ts" gorm:"column:ts;not null"`

	EnergyWhTotal *float64 `json:"energy_wh_total"`
	PowerW        *float64 `json:"power_w"`
	CurrentA      *float64 `json:"current_a"`

	CreatedAt time.Time `json:"created_at"`
}

func (MeterSample) TableName() string { return "meter_samples" }
