package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"keyward/internal/crypto"
	"keyward/internal/models"
	"keyward/internal/store"
)

// Response codes shared by the validate and sync pipelines. They are part
// of the wire contract with deployed clients and must not change.
const (
	CodeOkay        = "OKAY"
	CodeSuccess     = "SUCCESS"
	CodeAPIKey      = "ERR_API_KEY"
	CodePubPrivKey  = "ERR_PUB_PRIV_KEY"
	CodeSerialKey   = "ERR_SERIAL_KEY"
	CodeKeyRevoked  = "ERR_KEY_REVOKED"
	CodeKeyExpired  = "ERR_KEY_EXPIRED"
	CodeDevicesFull = "ERR_KEY_DEVICES_FULL"
	CodeHWID        = "ERR_HWID"
	CodeNoData      = "ERR_NO_DATA"
	CodeInternal    = "ERR_INTERNAL"
)

// Outcome is the explicit result of a validation or sync attempt. Failure
// is a value carrying one of the codes above, never an error or a panic.
type Outcome struct {
	HTTPStatus     int
	Code           string
	Message        string
	SerialKey      *string
	HardwareID     *string
	ExpirationDate int64
}

// IsError reports whether the outcome is a rejection. An audit row's result
// field derives from this.
func (o Outcome) IsError() bool {
	return strings.Contains(o.Code, "ERR")
}

func reject(status int, code, message string) Outcome {
	return Outcome{HTTPStatus: status, Code: code, Message: message, ExpirationDate: -1}
}

// Validator is the license validation state machine. It owns the full
// decision for one decrypted (serialKey, hardwareID) pair: admit a new
// device, confirm a known one, or reject with a terminal code, mutating
// license state where the decision calls for it.
type Validator struct {
	Products      store.ProductStore
	Licenses      store.LicenseStore
	Registrations store.RegistrationStore
	Logs          store.LogStore
}

func NewValidator(products store.ProductStore, licenses store.LicenseStore, registrations store.RegistrationStore, logs store.LogStore) *Validator {
	return &Validator{
		Products:      products,
		Licenses:      licenses,
		Registrations: registrations,
		Logs:          logs,
	}
}

// Validate runs the state machine and writes exactly one validation log
// row for the attempt, whatever the outcome.
func (v *Validator) Validate(ctx context.Context, apiKey, payload, sourceIP string) Outcome {
	outcome := v.validate(ctx, apiKey, payload)
	v.logAttempt(ctx, apiKey, sourceIP, outcome)
	return outcome
}

func (v *Validator) validate(ctx context.Context, apiKey, payload string) Outcome {
	now := time.Now()

	// Step 1: resolve the product behind the API key.
	product, err := v.Products.GetProductByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reject(http.StatusUnauthorized, CodeAPIKey, "The provided API key is invalid. The validation request was not processed.")
		}
		slog.Error("Product lookup failed", "error", err)
		return reject(http.StatusInternalServerError, CodeInternal, "An internal error occurred while processing the request.")
	}

	// Step 2: open the envelope with the product's private key.
	serialKey, hardwareID, err := crypto.Decrypt(payload, product.PrivateKey)
	if err != nil {
		return reject(http.StatusUnauthorized, CodePubPrivKey, "Decryption failed. The payload may have been encrypted with the wrong key.")
	}

	// Step 3: resolve the license, scoped to this product. An unknown
	// serial key is rejected before hardware binding is even considered.
	license, err := v.Licenses.GetLicenseBySerial(ctx, serialKey, product.ID.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			o := reject(http.StatusUnauthorized, CodeSerialKey, "The provided serial key is invalid. The validation request was processed and rejected.")
			o.SerialKey = &serialKey
			o.HardwareID = &hardwareID
			return o
		}
		slog.Error("License lookup failed", "error", err)
		return reject(http.StatusInternalServerError, CodeInternal, "An internal error occurred while processing the request.")
	}

	outcome := Outcome{
		SerialKey:      &serialKey,
		HardwareID:     &hardwareID,
		ExpirationDate: EffectiveExpiry(license),
	}

	// Step 4: renewal path or admission path, depending on whether this
	// hardware ID is already bound.
	_, err = v.Registrations.GetRegistration(ctx, license.ID.String(), hardwareID)
	switch {
	case err == nil:
		return v.confirmDevice(ctx, license, now, outcome)
	case errors.Is(err, store.ErrNotFound):
		return v.admitDevice(ctx, license, hardwareID, now, outcome)
	default:
		slog.Error("Registration lookup failed", "error", err)
		return reject(http.StatusInternalServerError, CodeInternal, "An internal error occurred while processing the request.")
	}
}

// confirmDevice re-validates an already-bound device. Quota and revocation
// are admission-time checks only: an active seat is never orphaned by a
// later quota change, it can only expire.
func (v *Validator) confirmDevice(ctx context.Context, license *models.License, now time.Time, outcome Outcome) Outcome {
	if LicenseValid(license, now.Unix()) {
		outcome.HTTPStatus = http.StatusOK
		outcome.Code = CodeOkay
		outcome.Message = "This device is still registered and everything is working correctly."
		return outcome
	}
	return v.expire(ctx, license, outcome, "This license is no longer valid.")
}

// admitDevice handles first contact from a hardware ID: revocation, then
// expiration, then the quota-checked admission itself. The quota check and
// the device-count increment are a single conditional update at the
// storage layer, so concurrent admissions for the last free slot are
// linearized there rather than behind an application lock.
func (v *Validator) admitDevice(ctx context.Context, license *models.License, hardwareID string, now time.Time, outcome Outcome) Outcome {
	if license.Status == models.StatusRevoked {
		outcome.HTTPStatus = http.StatusForbidden
		outcome.Code = CodeKeyRevoked
		outcome.Message = "The key was revoked. Your request was valid, but the license is disabled until further notice."
		return outcome
	}

	if !LicenseValid(license, now.Unix()) {
		return v.expire(ctx, license, outcome, "This license is no longer valid and will not accept new devices.")
	}

	err := v.Licenses.AdmitDevice(ctx, license.ID.String(), hardwareID, now)
	if err != nil {
		if errors.Is(err, store.ErrDevicesFull) {
			outcome.HTTPStatus = http.StatusBadRequest
			outcome.Code = CodeDevicesFull
			outcome.Message = "The maximum number of devices for this license key has been reached."
			return outcome
		}
		slog.Error("Device admission failed", "error", err, "license_id", license.ID)
		return reject(http.StatusInternalServerError, CodeInternal, "An internal error occurred while processing the request.")
	}

	// First-ever admission starts the days-from-activation clock; report
	// the expiry that follows from it.
	if license.ActivationDate == nil {
		ts := now.Unix()
		license.ActivationDate = &ts
		outcome.ExpirationDate = EffectiveExpiry(license)
	}

	outcome.HTTPStatus = http.StatusCreated
	outcome.Code = CodeSuccess
	outcome.Message = "Your registration was completed successfully!"
	return outcome
}

// expire marks a license Expired as a side effect of discovering it during
// validation, then rejects.
func (v *Validator) expire(ctx context.Context, license *models.License, outcome Outcome, message string) Outcome {
	if err := v.Licenses.SetStatus(ctx, license.ID.String(), models.StatusExpired); err != nil {
		slog.Error("Failed to mark license expired", "error", err, "license_id", license.ID)
	}
	outcome.HTTPStatus = http.StatusBadRequest
	outcome.Code = CodeKeyExpired
	outcome.Message = message
	return outcome
}

// logAttempt writes the audit row for one validation attempt. The write is
// synchronous: the row must exist once the response is sent.
func (v *Validator) logAttempt(ctx context.Context, apiKey, sourceIP string, outcome Outcome) {
	result := models.ResultSuccess
	if outcome.IsError() {
		result = models.ResultError
	}

	entry := &models.ValidationLog{
		Result:     result,
		Code:       outcome.Code,
		IPAddress:  sourceIP,
		APIKey:     apiKey,
		SerialKey:  outcome.SerialKey,
		HardwareID: outcome.HardwareID,
	}
	if err := v.Logs.CreateValidationLog(ctx, entry); err != nil {
		slog.Error("Failed to create validation log", "error", err, "code", outcome.Code)
	}

	slog.Info("License validation",
		"result", result,
		"code", outcome.Code,
		"ip", sourceIP,
	)
}
