package packsync

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies "now" to the syncer and the index. The latest query hides
// records dated after it, and sync runs are stamped with it.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator names sync runs.
type IDGenerator interface {
	New() string
}

// UUIDGenerator names runs with random v4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
