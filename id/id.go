package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Namespace UUIDs for the entity types (UUIDv5 requires a namespace)
var (
	PollerNamespace = uuid.MustParse("3f1c2a10-6d2e-5b8a-9c41-7e0d5a6b2c01")
	RunNamespace    = uuid.MustParse("3f1c2a11-6d2e-5b8a-9c41-7e0d5a6b2c01")
	EventNamespace  = uuid.MustParse("3f1c2a12-6d2e-5b8a-9c41-7e0d5a6b2c01")
)

// GeneratePollerID generates a deterministic ID for a poller based on its name
func GeneratePollerID(name string) string {
	id := uuid.NewSHA1(PollerNamespace, []byte(name))
	return fmt.Sprintf("poller_%s", id.String())
}

// GenerateRunID generates a deterministic ID for one start of a poller
func GenerateRunID(pollerID string, startedAt time.Time) string {
	combined := fmt.Sprintf("%s:%s", pollerID, startedAt.UTC().Format(time.RFC3339Nano))
	id := uuid.NewSHA1(RunNamespace, []byte(combined))
	return fmt.Sprintf("run_%s", id.String())
}

// GenerateEventID generates a deterministic ID for a lifecycle event.
// seq disambiguates events recorded at the same instant.
func GenerateEventID(pollerID string, at time.Time, seq uint64) string {
	combined := fmt.Sprintf("%s:%s:%d", pollerID, at.UTC().Format(time.RFC3339Nano), seq)
	id := uuid.NewSHA1(EventNamespace, []byte(combined))
	return fmt.Sprintf("evt_%s", id.String())
}

// NewCorrelationID returns a random ID for tying a log line to a returned error
func NewCorrelationID() string {
	return uuid.NewString()
}
