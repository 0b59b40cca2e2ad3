package model

import "errors"

// Common errors used across the application
var (
	// Validation errors, raised before any store access
	ErrNameRequired   = errors.New("name is required")
	ErrRoomRequired   = errors.New("room number is required")
	ErrPlayerRequired = errors.New("two players are required")
	ErrSamePlayer     = errors.New("a match needs two different players")
	ErrInvalidScore   = errors.New("scores must be non-negative integers")

	// Authorization errors
	ErrNotAdmin      = errors.New("admin privileges required")
	ErrNotAuthorized = errors.New("not authorized as admin")

	// Player errors
	ErrPlayerNotFound = errors.New("player not found")

	// Match errors
	ErrMatchNotFound           = errors.New("match not found")
	ErrMatchFinished           = errors.New("match is already finished")
	ErrInvalidStatusTransition = errors.New("invalid match status transition")

	// Account errors
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")

	// Store errors
	ErrRecordExists = errors.New("record already exists")

	// Change feed errors
	ErrMalformedEvent       = errors.New("malformed change event")
	ErrSubscriptionOverflow = errors.New("change subscription overflowed")
	ErrSubscriptionClosed   = errors.New("change subscription closed")
)
