// ABOUTME: JWT tokens identifying apps and the approval UI to the gateway
// ABOUTME: HS256 signed; the subject is the app id and the role selects which RPCs are allowed

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/wallet-gateway/internal/clock"
)

// MinSecretLength is the shortest accepted signing secret in bytes.
const MinSecretLength = 32

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// Role is what a token holder may do.
type Role string

const (
	// RoleApp may invoke wallet commands as the token's subject.
	RoleApp Role = "app"
	// RoleUI may answer authorization requests and watch every app.
	RoleUI Role = "ui"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleApp || r == RoleUI
}

// Identity is the verified holder of a token.
type Identity struct {
	Subject string
	Role    Role
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (Identity, error)
}

// JWTIssuer signs and verifies HS256 tokens.
type JWTIssuer struct {
	secret []byte
	clock  clock.Clock
}

// NewJWTIssuer creates an issuer. clk may be nil for real time.
func NewJWTIssuer(secret []byte, clk clock.Clock) (*JWTIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &JWTIssuer{secret: secret, clock: clk}, nil
}

// Verify validates the token and extracts the subject and role claims
func (v *JWTIssuer) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.clock.Now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	role, _ := claims["role"].(string)
	if !Role(role).Valid() {
		return Identity{}, fmt.Errorf("%w: role", ErrMissingClaim)
	}

	return Identity{Subject: sub, Role: Role(role)}, nil
}

// Generate creates a token for subject with the given role. A zero
// expiresIn produces a token without expiry.
func (v *JWTIssuer) Generate(subject string, role Role, expiresIn time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := v.clock.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": string(role),
		"iat":  now.Unix(),
	}
	if expiresIn > 0 {
		claims["exp"] = now.Add(expiresIn).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
