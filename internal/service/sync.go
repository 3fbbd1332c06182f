package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"keyward/internal/crypto"
	"keyward/internal/store"
)

// Syncer accepts encrypted state-sync uploads from devices that already
// hold a registration. It reuses the validation pipeline's product,
// envelope, and license resolution, then persists the payload verbatim.
type Syncer struct {
	Products      store.ProductStore
	Licenses      store.LicenseStore
	Registrations store.RegistrationStore
	Files         store.SyncStore
}

func NewSyncer(products store.ProductStore, licenses store.LicenseStore, registrations store.RegistrationStore, files store.SyncStore) *Syncer {
	return &Syncer{
		Products:      products,
		Licenses:      licenses,
		Registrations: registrations,
		Files:         files,
	}
}

// Sync authenticates the device and stores jsonData. Sync never mutates
// license state; it is strictly for devices already admitted by Validate.
func (s *Syncer) Sync(ctx context.Context, apiKey, payload string, jsonData json.RawMessage) Outcome {
	product, err := s.Products.GetProductByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reject(http.StatusUnauthorized, CodeAPIKey, "The provided API key is invalid.")
		}
		slog.Error("Product lookup failed", "error", err)
		return reject(http.StatusInternalServerError, CodeInternal, "An internal error occurred while processing the request.")
	}

	serialKey, hardwareID, err := crypto.Decrypt(payload, product.PrivateKey)
	if err != nil {
		return reject(http.StatusUnauthorized, CodePubPrivKey, "Decryption failed.")
	}

	license, err := s.Licenses.GetLicenseBySerial(ctx, serialKey, product.ID.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reject(http.StatusUnauthorized, CodeSerialKey, "The provided license is invalid.")
		}
		slog.Error("License lookup failed", "error", err)
		return reject(http.StatusInternalServerError, CodeInternal, "An internal error occurred while processing the request.")
	}

	if _, err := s.Registrations.GetRegistration(ctx, license.ID.String(), hardwareID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reject(http.StatusUnauthorized, CodeHWID, "This device is not registered for this license.")
		}
		slog.Error("Registration lookup failed", "error", err)
		return reject(http.StatusInternalServerError, CodeInternal, "An internal error occurred while processing the request.")
	}

	if emptyJSON(jsonData) {
		return reject(http.StatusBadRequest, CodeNoData, "No JSON data provided.")
	}

	path, err := s.Files.SaveSync(product.ID.String(), license.ID.String(), hardwareID, jsonData, time.Now())
	if err != nil {
		slog.Error("Failed to persist sync payload", "error", err, "license_id", license.ID)
		return reject(http.StatusInternalServerError, CodeInternal, "An internal error occurred while storing the data.")
	}

	slog.Info("Sync stored", "product_id", product.ID, "license_id", license.ID, "path", path)

	return Outcome{
		HTTPStatus:     http.StatusOK,
		Code:           CodeSuccess,
		Message:        "Data synchronized successfully.",
		SerialKey:      &serialKey,
		HardwareID:     &hardwareID,
		ExpirationDate: EffectiveExpiry(license),
	}
}

func emptyJSON(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
