package core

import "errors"

// Error taxonomy shared by the pools and the polling engine.
var (
	// ErrRateLimited marks a transient upstream rate limit. Retryable.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrAccountBlocked marks an identity that is blocked until its cooldown elapses.
	ErrAccountBlocked = errors.New("account is blocked")

	// ErrTooManyLoginAttempts marks an identity that exceeded its login attempt budget.
	ErrTooManyLoginAttempts = errors.New("too many login attempts")

	// ErrNoAvailableCredentials is returned when every credential slot is at quota.
	ErrNoAvailableCredentials = errors.New("no available credentials")

	// ErrSessionCorrupt marks a stored session that could not be decoded.
	ErrSessionCorrupt = errors.New("session data is corrupt")
)
