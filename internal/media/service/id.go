package service

import "github.com/google/uuid"

// IDFunc produces a fresh document identifier on every call.
type IDFunc func() string

// NewID returns a random (version 4) UUID in canonical form. The value is
// drawn from crypto/rand; it doubles as an unguessable retrieval token, so
// it must never be derived from a counter or clock.
func NewID() string {
	return uuid.New().String()
}
