// Package auth - jwt.go handles token creation, signing and verification using a
// shared secret, including lazy secret initialization. Admin and public tokens
// carry different audiences so one can never be accepted in place of the other.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer    = "net-imobiliaria"
	audienceAdmin  = "admin"
	audiencePublic = "public"
)

var (
	// jwtSecret holds the validated JWT secret
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// AdminClaims is the back-office token. Permissoes is the permission snapshot
// resolved at login; SessionID links the token to its session registry row.
type AdminClaims struct {
	UserID       string        `json:"userId"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	RoleName     string        `json:"role_name"`
	RoleLevel    int           `json:"role_level"`
	Is2FAEnabled bool          `json:"is2FAEnabled"`
	Permissoes   PermissionMap `json:"permissoes"`
	SessionID    string        `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// PublicClaims is the cliente/proprietario token
type PublicClaims struct {
	UserUUID     string `json:"userUuid"`
	UserType     string `json:"userType"`
	Email        string `json:"email"`
	Nome         string `json:"nome"`
	Is2FAEnabled bool   `json:"is2FAEnabled"`
	jwt.RegisteredClaims
}

// isDevMode checks if we're in development mode
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	env := os.Getenv("NIA_ENVIRONMENT")
	ginMode := os.Getenv("GIN_MODE")

	return devMode == "true" || devMode == "1" ||
		env == "development" ||
		ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ValidateJWTSecret checks that the JWT secret is properly configured.
// In production, this will fail if NIA_JWT_SECRET is not set.
// In dev mode, it will generate a random secret and log a warning.
// Call this at application startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv("NIA_JWT_SECRET")

		if secret == "" {
			if isDevMode() {
				jwtSecret = generateRandomSecret()
				slog.Warn("NIA_JWT_SECRET not set, using an auto-generated secret for development; tokens will not survive restarts")
			} else {
				jwtSecretErr = errors.New("SECURITY ERROR: NIA_JWT_SECRET environment variable is required in production. " +
					"Generate a secure secret with: openssl rand -hex 32")
			}
			return
		}

		if len(secret) < 32 {
			slog.Warn("NIA_JWT_SECRET is shorter than the recommended 32 characters")
		}

		jwtSecret = secret
	})

	return jwtSecretErr
}

// GetJWTSecret retrieves the validated JWT secret.
// Panics if ValidateJWTSecret() hasn't been called or failed.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

func registered(subject, audience string, expiresIn time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
	}
}

func sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(GetJWTSecret()))
}

func parse(tokenString string, claims jwt.Claims, audience string) error {
	secret := GetJWTSecret()

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithAudience(audience), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

// GenerateAdminJWT signs an admin token valid for expiresIn (1 hour when zero)
func GenerateAdminJWT(claims AdminClaims, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = time.Hour
	}
	if claims.Permissoes == nil {
		claims.Permissoes = PermissionMap{}
	}
	claims.RegisteredClaims = registered(claims.UserID, audienceAdmin, expiresIn)
	return sign(&claims)
}

// ValidateAdminJWT parses and validates an admin token
func ValidateAdminJWT(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if err := parse(tokenString, claims, audienceAdmin); err != nil {
		return nil, err
	}
	if claims.Permissoes == nil {
		claims.Permissoes = PermissionMap{}
	}
	return claims, nil
}

// GeneratePublicJWT signs a public account token valid for expiresIn (24 hours when zero)
func GeneratePublicJWT(claims PublicClaims, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = 24 * time.Hour
	}
	claims.RegisteredClaims = registered(claims.UserUUID, audiencePublic, expiresIn)
	return sign(&claims)
}

// ValidatePublicJWT parses and validates a public account token
func ValidatePublicJWT(tokenString string) (*PublicClaims, error) {
	claims := &PublicClaims{}
	if err := parse(tokenString, claims, audiencePublic); err != nil {
		return nil, err
	}
	return claims, nil
}
