package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"keyward/internal/crypto"
)

// Mirrors the client-side encryptor: produces the base64 payload a device
// would POST to /api/v1/validate. Handy for curl testing against a running
// server.
func main() {
	var publicKeyPath, serialKey, hardwareID string

	flag.StringVar(&publicKeyPath, "pubkey", "", "Path to the product's public key PEM")
	flag.StringVar(&serialKey, "serial", "", "Serial key")
	flag.StringVar(&hardwareID, "hwid", "", "Hardware ID")
	flag.Parse()

	if publicKeyPath == "" || serialKey == "" || hardwareID == "" {
		fmt.Println("Usage: go run scripts/encryptpayload -pubkey <pem> -serial <...> -hwid <...>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	publicKeyPEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		log.Fatalf("Failed to read public key: %v", err)
	}

	payload, err := crypto.Encrypt(serialKey, hardwareID, publicKeyPEM)
	if err != nil {
		log.Fatalf("Failed to encrypt payload: %v", err)
	}

	fmt.Println(payload)
}
