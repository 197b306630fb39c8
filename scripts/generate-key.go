// Package main is a development utility that prints a random JWT signing
// secret in the form expected by the server:
//
//	go run ./scripts/generate-key.go >> .env
//
// The secret is 48 random bytes, base64url-encoded, comfortably past the 32
// characters ValidateJWTSecret recommends.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func main() {
	secret := make([]byte, 48)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("NIA_JWT_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(secret))
}
