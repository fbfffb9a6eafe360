package domain

import (
	"strings"
	"time"
)

type ChargePointStatus string

const (
	ChargePointStatusAvailable   ChargePointStatus = "available"
	ChargePointStatusPreparing   ChargePointStatus = "preparing"
	ChargePointStatusCharging    ChargePointStatus = "charging"
	ChargePointStatusFinishing   ChargePointStatus = "finishing"
	ChargePointStatusFaulted     ChargePointStatus = "faulted"
	ChargePointStatusUnavailable ChargePointStatus = "unavailable"
	ChargePointStatusUnknown     ChargePointStatus = "unknown"

	// Derived, never stored: last_seen_at older than the offline TTL.
	ChargePointStatusOffline ChargePointStatus = "offline"
)

// StatusFromOCPP maps an OCPP 1.6 status string onto the stored
// vocabulary. Suspended states keep the charging view; anything
// unrecognized becomes unknown.
func StatusFromOCPP(raw string) ChargePointStatus {
	switch strings.ToLower(raw) {
	case "available":
		return ChargePointStatusAvailable
	case "preparing":
		return ChargePointStatusPreparing
	case "charging", "suspendedev", "suspendedevse":
		return ChargePointStatusCharging
	case "finishing":
		return ChargePointStatusFinishing
	case "faulted":
		return ChargePointStatusFaulted
	case "unavailable", "reserved":
		return ChargePointStatusUnavailable
	default:
		return ChargePointStatusUnknown
	}
}

// ChargePoint is a physical charging station. OCPPID is the station's
// self-declared serial, unique across the fleet; it keys the WebSocket
// registry.
type ChargePoint struct {
	ID              uint              `json:"id" gorm:"primaryKey"`
	OCPPID          string            `json:"ocpp_id" gorm:"column:ocpp_id;uniqueIndex;not null"`
	Vendor          string            `json:"vendor"`
	Model           string            `json:"model"`
	SerialNumber    string            `json:"serial_number"`
	FirmwareVersion string            `json:"firmware_version"`
	Status          ChargePointStatus `json:"status" gorm:"size:32;default:available"`
	LastSeenAt      *time.Time        `json:"last_seen_at"`
	LocationID      *uint             `json:"location_id"`
	Location        *Location         `json:"location,omitempty" gorm:"foreignKey:LocationID"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (ChargePoint) TableName() string { return "charge_points" }

type Location struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	AddressText string    `json:"address_text" gorm:"size:512"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Location) TableName() string { return "locations" }
