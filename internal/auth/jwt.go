package auth

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds JWT validation configuration.
type Config struct {
	Issuer   string // Expected issuer (iss claim)
	Audience string // Expected audience (aud claim)
	Secret   string // Secret key for HS256
}

// ConfigFromEnv creates a Config from environment variables
// (AUTH_JWT_SECRET, AUTH_JWT_ISSUER, AUTH_JWT_AUDIENCE).
func ConfigFromEnv() Config {
	return Config{
		Secret:   os.Getenv("AUTH_JWT_SECRET"),
		Issuer:   os.Getenv("AUTH_JWT_ISSUER"),
		Audience: os.Getenv("AUTH_JWT_AUDIENCE"),
	}
}

// Claims are the token claims this service consumes.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Validator validates bearer tokens and extracts the acting identity.
type Validator struct {
	config Config
}

// NewValidator creates a new token validator.
func NewValidator(config Config) (*Validator, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Validator{config: config}, nil
}

// ValidateToken parses and validates a bearer token and returns the Actor
// it represents.
func (v *Validator) ValidateToken(tokenString string) (Actor, error) {
	claims := &Claims{}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if v.config.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(v.config.Secret), nil
	}, parserOpts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Actor{}, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return Actor{}, ErrInvalidIssuer
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return Actor{}, ErrInvalidAudience
		default:
			return Actor{}, ErrInvalidToken
		}
	}
	if !token.Valid {
		return Actor{}, ErrInvalidToken
	}

	if claims.TenantID == "" {
		return Actor{}, ErrMissingTenant
	}

	return Actor{
		TenantID: claims.TenantID,
		UserID:   claims.Subject,
		Role:     ParseRole(claims.Role),
	}, nil
}
