package models

import (
	"time"

	"github.com/google/uuid"
)

// Product identifies an application that validates licenses against this
// server. The API key is the bearer credential presented by devices; the RSA
// key pair is generated once at creation and never rotated afterwards, since
// the public half is baked into shipped client builds.
type Product struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category,omitempty"`
	Image      string    `json:"image,omitempty"`
	Details    string    `json:"details,omitempty"`
	APIKey     string    `json:"api_key"`
	PublicKey  []byte    `json:"public_key"`
	PrivateKey []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LicenseStatus is persisted numerically; the values are part of the wire
// contract with existing clients and operator tooling.
type LicenseStatus int

const (
	StatusInactive LicenseStatus = 0
	StatusActive   LicenseStatus = 1
	StatusRevoked  LicenseStatus = 2
	StatusExpired  LicenseStatus = 3
)

type ExpiryType int

const (
	// ExpiryFixedDate expires at an absolute unix timestamp. A zero
	// ExpiryDate under this model means the license is perpetual.
	ExpiryFixedDate ExpiryType = 0
	// ExpiryDaysFromActivation expires ExpiryDays days after the first
	// device admission. Until a device activates the license, the clock
	// has not started and the license is considered valid.
	ExpiryDaysFromActivation ExpiryType = 1
)

type License struct {
	ID             uuid.UUID     `json:"id"`
	ProductID      uuid.UUID     `json:"product_id"`
	CustomerID     uuid.UUID     `json:"customer_id"`
	SerialKey      string        `json:"serial_key"`
	Status         LicenseStatus `json:"status"`
	Devices        int           `json:"devices"`
	MaxDevices     int           `json:"max_devices"`
	ExpiryType     ExpiryType    `json:"expiry_type"`
	ExpiryDate     int64         `json:"expiry_date"`
	ExpiryDays     int64         `json:"expiry_days"`
	ActivationDate *int64        `json:"activation_date,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Registration binds one hardware fingerprint to one license. Created once
// on first successful validation, deleted only by an operator unlink.
type Registration struct {
	ID         uuid.UUID `json:"id"`
	LicenseID  uuid.UUID `json:"license_id"`
	HardwareID string    `json:"hardware_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Changelog is the append-only audit trail for operator actions.
type Changelog struct {
	ID        uuid.UUID  `json:"id"`
	LicenseID *uuid.UUID `json:"license_id,omitempty"`
	Actor     string     `json:"actor"`
	Action    string     `json:"action"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// ValidationLog records every validation attempt, success or failure.
// SerialKey and HardwareID are nil when decryption failed before they were
// recoverable.
type ValidationLog struct {
	ID         uuid.UUID `json:"id"`
	Result     string    `json:"result"`
	Code       string    `json:"code"`
	IPAddress  string    `json:"ip_address"`
	APIKey     string    `json:"api_key"`
	SerialKey  *string   `json:"serial_key,omitempty"`
	HardwareID *string   `json:"hardware_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	ResultSuccess = "SUCCESS"
	ResultError   = "ERROR"
)

type DashboardStats struct {
	TotalProducts         int     `json:"total_products"`
	TotalLicenses         int     `json:"total_licenses"`
	ActivatedSeats        int     `json:"activated_seats"`
	AwaitingSeats         int     `json:"awaiting_seats"`
	ActivationRatio       float64 `json:"activation_ratio"`
	SuccessfulValidations int     `json:"successful_validations"`
	FailedValidations     int     `json:"failed_validations"`
}
