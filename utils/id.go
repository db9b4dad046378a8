package utils

import (
	"github.com/google/uuid"
)

// NewID returns a random UUIDv4 string used for users and tasks.
func NewID() string {
	return uuid.NewString()
}

// IsID reports whether s looks like an ID produced by NewID. Lookups with a
// malformed ID can short-circuit to "not found" without a store round trip.
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
