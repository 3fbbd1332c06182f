package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
)

// Verifies a response signature the way a client integration would: the
// signed message is "<X-Keyward-Timestamp>.<response body>".
func main() {
	var publicKeyB64, signatureB64, timestamp, bodyPath string

	flag.StringVar(&publicKeyB64, "pubkey", "", "Base64 encoded public key (from config.yaml)")
	flag.StringVar(&signatureB64, "signature", "", "X-Keyward-Signature header value")
	flag.StringVar(&timestamp, "timestamp", "", "X-Keyward-Timestamp header value")
	flag.StringVar(&bodyPath, "body", "", "Path to a file holding the raw response body")
	flag.Parse()

	if publicKeyB64 == "" || signatureB64 == "" || timestamp == "" || bodyPath == "" {
		fmt.Println("Usage: go run scripts/verifysig -pubkey <...> -signature <...> -timestamp <...> -body <file>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	pubKeyBytes, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		fmt.Printf("Error decoding public key: %v\n", err)
		os.Exit(1)
	}
	if len(pubKeyBytes) != ed25519.PublicKeySize {
		fmt.Printf("Invalid public key size: %d\n", len(pubKeyBytes))
		os.Exit(1)
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		fmt.Printf("Error decoding signature: %v\n", err)
		os.Exit(1)
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		fmt.Printf("Error reading body file: %v\n", err)
		os.Exit(1)
	}

	message := fmt.Sprintf("%s.%s", timestamp, string(body))
	if ed25519.Verify(ed25519.PublicKey(pubKeyBytes), []byte(message), signature) {
		fmt.Println("Signature is VALID and AUTHENTIC.")
	} else {
		fmt.Println("Signature is INVALID.")
		os.Exit(1)
	}
}
