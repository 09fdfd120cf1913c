// Package uuid generates request ids and opaque tokens.
package uuid

import (
	"github.com/google/uuid"
)

// NewRequestID returns a time-ordered UUIDv7 so ids in logs sort by arrival.
// It falls back to a random UUID if the v7 generator fails.
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewToken returns a random UUIDv4 string.
func NewToken() string {
	return uuid.NewString()
}
