package service

import (
	"keyward/internal/models"
)

const secondsPerDay = 86400

// IsLicenseValid is the single expiration check for the whole system: the
// read path, the validation path, and the expired-license sweep all call
// it. Timestamps are unix seconds.
//
// DaysFromActivation licenses are valid until expiryDays after the first
// device admission; before the first admission the clock has not started
// and the license is valid. FixedDate licenses are valid through the
// expiry timestamp, with 0 meaning perpetual.
func IsLicenseValid(expiryDate int64, expiryType models.ExpiryType, expiryDays int64, activationDate *int64, now int64) bool {
	if expiryType == models.ExpiryDaysFromActivation {
		if activationDate == nil {
			return true
		}
		return now <= *activationDate+expiryDays*secondsPerDay
	}

	if expiryDate == 0 {
		return true
	}
	return now <= expiryDate
}

// LicenseValid applies IsLicenseValid to a license record.
func LicenseValid(l *models.License, now int64) bool {
	return IsLicenseValid(l.ExpiryDate, l.ExpiryType, l.ExpiryDays, l.ActivationDate, now)
}

// EffectiveExpiry returns the unix timestamp a license expires at, or -1
// when it cannot be known yet (perpetual, or activation clock not started).
func EffectiveExpiry(l *models.License) int64 {
	if l.ExpiryType == models.ExpiryDaysFromActivation {
		if l.ActivationDate == nil {
			return -1
		}
		return *l.ActivationDate + l.ExpiryDays*secondsPerDay
	}
	if l.ExpiryDate == 0 {
		return -1
	}
	return l.ExpiryDate
}
