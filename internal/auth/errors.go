package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrUnauthorized = errors.New("auth: unauthorized")
)
