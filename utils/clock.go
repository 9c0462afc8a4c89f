package utils

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current wall-clock time. Services take a Clock so
// hold expiry and cancellation cutoffs can be exercised in tests by
// advancing a fake clock instead of sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator supplies unique identifiers for bookings, payments,
// holds and idempotency keys.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator is the production IDGenerator.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.New().String() }
