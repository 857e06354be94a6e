package store

import (
	"time"

	"github.com/google/uuid"
)

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDv7Generator names instances with time-sortable UUIDv7s, so instance
// ids within a schema sort roughly by creation time.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
