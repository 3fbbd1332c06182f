package middleware

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

type signingBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w signingBodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// ResponseSigning signs every response body with the server's ed25519 key
// so client integrations can verify a validate/sync answer really came
// from this server and was not tampered with in transit. The signature
// covers "<timestamp>.<body>", preventing replay of a body under a fresh
// timestamp.
func ResponseSigning(privateKeyBase64 string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if privateKeyBase64 == "" {
			c.Next()
			return
		}

		privateKeyBytes, err := base64.StdEncoding.DecodeString(privateKeyBase64)
		if err != nil {
			slog.Error("Invalid response signing key", "error", err)
			c.Next()
			return
		}
		if len(privateKeyBytes) != ed25519.PrivateKeySize {
			slog.Error("Invalid response signing key size", "size", len(privateKeyBytes), "expected", ed25519.PrivateKeySize)
			c.Next()
			return
		}
		privateKey := ed25519.PrivateKey(privateKeyBytes)

		w := &signingBodyWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// Signature payload: timestamp + body, so a body cannot be
		// replayed under an older timestamp.
		timestamp := time.Now().UTC().Format(time.RFC3339)
		payload := fmt.Sprintf("%s.%s", timestamp, w.body.String())
		signature := ed25519.Sign(privateKey, []byte(payload))

		c.Header("X-Keyward-Signature", base64.StdEncoding.EncodeToString(signature))
		c.Header("X-Keyward-Timestamp", timestamp)
	}
}
