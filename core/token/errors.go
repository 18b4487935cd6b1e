package token

import "errors"

var (
	// ErrMissingSigningKey is returned when the validator is built without a key.
	ErrMissingSigningKey = errors.New("token signing key is required")

	// ErrMissingToken is returned when no bearer token is supplied.
	ErrMissingToken = errors.New("bearer token is required")

	// ErrInvalidToken is returned when a token fails validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)
