package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	pubPEM, privPEM, err := GenerateKeyPair()
	require.NoError(t, err)

	payload, err := Encrypt("SERIAL-ABC-123", "HWID-XYZ", pubPEM)
	require.NoError(t, err)

	serial, hwid, err := Decrypt(payload, privPEM)
	require.NoError(t, err)
	assert.Equal(t, "SERIAL-ABC-123", serial)
	assert.Equal(t, "HWID-XYZ", hwid)
}

func TestDecryptWrongKey(t *testing.T) {
	pubPEM, _, err := GenerateKeyPair()
	require.NoError(t, err)
	_, otherPrivPEM, err := GenerateKeyPair()
	require.NoError(t, err)

	payload, err := Encrypt("SERIAL", "HWID", pubPEM)
	require.NoError(t, err)

	_, _, err = Decrypt(payload, otherPrivPEM)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptBadBase64(t *testing.T) {
	_, privPEM, err := GenerateKeyPair()
	require.NoError(t, err)

	_, _, err = Decrypt("not//valid==base64!!", privPEM)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptCorruptedCiphertext(t *testing.T) {
	pubPEM, privPEM, err := GenerateKeyPair()
	require.NoError(t, err)

	payload, err := Encrypt("SERIAL", "HWID", pubPEM)
	require.NoError(t, err)

	// Flip a character in the middle of the base64 body.
	corrupted := []byte(payload)
	if corrupted[10] == 'A' {
		corrupted[10] = 'B'
	} else {
		corrupted[10] = 'A'
	}

	_, _, err = Decrypt(string(corrupted), privPEM)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptWrongFieldCount(t *testing.T) {
	pubPEM, privPEM, err := GenerateKeyPair()
	require.NoError(t, err)

	// Hardware ID containing a colon yields three fields after split.
	payload, err := Encrypt("SERIAL", "HW:ID", pubPEM)
	require.NoError(t, err)

	_, _, err = Decrypt(payload, privPEM)
	assert.ErrorIs(t, err, ErrDecryption)
}
