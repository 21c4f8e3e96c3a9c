package auth

import "errors"

var (
	// ErrUnauthorized indicates the caller lacks a valid principal or role.
	ErrUnauthorized = errors.New("unauthorized")
)
