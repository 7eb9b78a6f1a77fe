// Package auth provides admin-key hashing and JWT generation/parsing for the
// gateway's mutating endpoints. This is a leaf package with no domain
// dependencies; used by internal/api/middleware and the token handler.
package auth

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// BCryptCost is the work factor for bcrypt hashing of the admin key.
const BCryptCost = 12

// DefaultTokenExpiry is the default token lifetime in hours if not set via env.
const DefaultTokenExpiry = 24

const (
	envJWTSecret = "MODELGATE_JWT_SECRET"
	envJWTExpiry = "MODELGATE_JWT_EXPIRY"
)

// getJWTSecret reads the signing secret from the environment. Panics if not
// set: token issuing must not silently fall back to an empty secret.
func getJWTSecret() []byte {
	secret := os.Getenv(envJWTSecret)
	if secret == "" {
		panic(envJWTSecret + " environment variable not set — cannot initialize auth")
	}
	return []byte(secret)
}

// parseExpiry parses an expiry string (hours) into a Duration.
// Returns DefaultTokenExpiry for empty or invalid input.
func parseExpiry(expiryStr string) time.Duration {
	if expiryStr == "" {
		return time.Duration(DefaultTokenExpiry) * time.Hour
	}

	hours, err := strconv.Atoi(expiryStr)
	if err != nil {
		return time.Duration(DefaultTokenExpiry) * time.Hour
	}

	return time.Duration(hours) * time.Hour
}

func getExpiry() time.Duration {
	return parseExpiry(os.Getenv(envJWTExpiry))
}

// HashKey hashes a plaintext admin key using bcrypt. The hash is what gets
// written into the config file; the plaintext key is never stored.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), BCryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin key: %w", err)
	}
	return string(hash), nil
}

// VerifyKey verifies a plaintext admin key against a bcrypt hash.
// Returns false (not error) for invalid hashes so the response never leaks
// hash format details.
func VerifyKey(hash, key string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	return err == nil
}

// Claims are the JWT claims carried by an admin token.
type Claims struct {
	Actor string `json:"actor"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed admin JWT for the given actor label.
func GenerateToken(actor string) (string, error) {
	now := time.Now()
	expiresAt := now.Add(getExpiry())

	claims := &Claims{
		Actor: actor,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(getJWTSecret())
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return signedToken, nil
}

// ParseToken validates and parses an admin JWT, extracting claims.
// Returns an error if the token is invalid, expired, or malformed.
func ParseToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token is empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Reject anything but HMAC to prevent algorithm substitution attacks.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return getJWTSecret(), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid JWT claims or signature")
	}

	return claims, nil
}
