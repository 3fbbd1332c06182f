package service

import (
	"crypto/rand"
	"math/big"
)

const keyCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	SerialKeyLength = 20
	APIKeyLength    = 64
)

// GenerateSecret draws length characters from the charset using crypto/rand.
// Serial and API keys must never be derivable from a counter or clock.
func GenerateSecret(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyCharset))))
		if err != nil {
			return "", err
		}
		b[i] = keyCharset[num.Int64()]
	}
	return string(b), nil
}

// GenerateSerialKey creates a license serial key.
func GenerateSerialKey() (string, error) {
	return GenerateSecret(SerialKeyLength)
}

// GenerateAPIKey creates a product API key.
func GenerateAPIKey() (string, error) {
	return GenerateSecret(APIKeyLength)
}
