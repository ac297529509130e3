package licenses

import "errors"

var (
	// ErrLimitReached indicates the company has no free seats left.
	ErrLimitReached = errors.New("license limit reached")
	ErrNotFound     = errors.New("license not found")
	ErrExpired      = errors.New("license term expired")
	ErrInvalidInput = errors.New("invalid input")
)
