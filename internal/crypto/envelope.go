// Package crypto implements the transport envelope shared with client
// integrations: RSA-OAEP with SHA-256 as both digest and MGF1 hash, no
// label, over a "serialKey:hardwareID" UTF-8 plaintext, base64 on the wire.
// The scheme must match the shipped client encryptors bit for bit.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

const keyBits = 2048

// ErrDecryption covers every envelope failure: bad base64, a ciphertext the
// product's private key cannot open, and a plaintext that does not split
// into exactly two colon-separated fields. Callers only need to know the
// envelope did not open; the cause is wrapped for logs.
var ErrDecryption = errors.New("payload decryption failed")

// Decrypt unwraps an inbound payload with the product's private key and
// returns the serial key and hardware ID. There is no partial success: any
// failure returns ErrDecryption and empty strings.
func Decrypt(payloadBase64 string, privateKeyPEM []byte) (serialKey, hardwareID string, err error) {
	ciphertext, err := base64.StdEncoding.DecodeString(payloadBase64)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid base64: %v", ErrDecryption, err)
	}

	priv, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ciphertext, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	parts := strings.Split(string(plaintext), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: plaintext has %d fields, want 2", ErrDecryption, len(parts))
	}

	return parts[0], parts[1], nil
}

// Encrypt is the inverse of Decrypt and mirrors the client-side encryptor.
// The server itself never calls it on the request path; it exists for tests
// and the payload generation script.
func Encrypt(serialKey, hardwareID string, publicKeyPEM []byte) (string, error) {
	pub, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return "", err
	}

	plaintext := []byte(serialKey + ":" + hardwareID)
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt payload: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// GenerateKeyPair creates the per-product RSA key pair, PEM encoded. The
// public key is handed to client integrators out-of-band.
func GenerateKeyPair() (publicKeyPEM, privateKeyPEM []byte, err error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	privateKeyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	publicKeyPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return publicKeyPEM, privateKeyPEM, nil
}

func parsePrivateKey(keyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("no PEM block in private key")
	}

	// PKCS#8 is what GenerateKeyPair emits; PKCS#1 kept for keys imported
	// from older deployments.
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not RSA")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func parsePublicKey(keyPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("no PEM block in public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return rsaKey, nil
}
