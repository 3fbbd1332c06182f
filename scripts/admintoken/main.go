package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"keyward/internal/config"
)

func main() {
	var configPath string
	var actor string
	var ttl time.Duration

	flag.StringVar(&configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&actor, "actor", "admin", "Operator name recorded in the audit trail")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")
	flag.Parse()

	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	claims := jwt.MapClaims{
		"sub": actor,
		"iat": time.Now().Unix(),
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(cfg.AdminSecret))
	if err != nil {
		log.Fatalf("Error signing token: %v", err)
	}

	fmt.Println(tokenString)
}
