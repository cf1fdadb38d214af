package entity

import "errors"

var (
	// ErrMissingAPIKey is returned before any request when no vision credential is configured
	ErrMissingAPIKey = errors.New("vision API key is not configured")

	// ErrUnauthorized is returned when the vision endpoint rejects the credential
	ErrUnauthorized = errors.New("vision API rejected the credential")

	ErrNotFound           = errors.New("record not found")
	ErrInvalidField       = errors.New("invalid field update")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("user already exists")
)
