package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: identity already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUnauthorized       = errors.New("auth: unauthorized")
)

// ErrInvalidToken covers every refresh and access token failure. Expired
// signature, unknown hash and already-revoked records all collapse here so
// the caller cannot tell which one happened.
var ErrInvalidToken = errors.New("auth: invalid token")
