package data

import "errors"

// Sentinel errors for the profile repository.
var (
	ErrProfileIDRequired = errors.New("profile id is required")
	ErrProfileEmail      = errors.New("profile email is required")
)
