package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated principal behind a connection, resolved once
// at upgrade time and attached to the connection for its lifetime.
type Identity struct {
	UserID      string
	DisplayName string
	Avatar      string
}

// Validator resolves a bearer token into an Identity.
type Validator interface {
	Validate(ctx context.Context, bearer string) (Identity, error)
}

// Config holds JWT validation settings.
type Config struct {
	SigningKey string        `env:"TOKEN_SIGNING_KEY,required"`
	Issuer     string        `env:"TOKEN_ISSUER" envDefault:"chatrelay"`
	TTL        time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
}

type claims struct {
	DisplayName string `json:"name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator validates HMAC-signed JWTs carrying the user identity.
type JWTValidator struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// NewJWTValidator creates a validator from config.
func NewJWTValidator(cfg Config) (*JWTValidator, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTValidator{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		ttl:    ttl,
	}, nil
}

// Validate implements Validator.
func (v *JWTValidator) Validate(ctx context.Context, bearer string) (Identity, error) {
	if bearer == "" {
		return Identity{}, ErrMissingToken
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(bearer, &parsed, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		default:
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if parsed.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return Identity{
		UserID:      parsed.Subject,
		DisplayName: parsed.DisplayName,
		Avatar:      parsed.Avatar,
	}, nil
}

// Mint issues a signed token for the identity, used by the login layer and
// by tests.
func (v *JWTValidator) Mint(identity Identity) (string, error) {
	if identity.UserID == "" {
		return "", fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		DisplayName: identity.DisplayName,
		Avatar:      identity.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	})

	signed, err := tok.SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign token for %s: %w", identity.UserID, err)
	}
	return signed, nil
}
