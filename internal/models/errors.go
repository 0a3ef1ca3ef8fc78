package models

import "errors"

// Error kinds returned by the room service. Callers wrap them with detail
// using fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("entity not found")
	ErrUnauthorized = errors.New("caller is not the room admin")
	ErrCapacity     = errors.New("all speaking seats are taken")
	ErrConflict     = errors.New("concurrent modification")

	// ErrCodeTaken is returned by stores when a room code is already used
	// by another active room
	ErrCodeTaken = errors.New("room code already in use")
)
