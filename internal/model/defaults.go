package model

import "time"

// Shared defaults used by the CLI, the HTTP API and the run orchestrator.
const (
	DefaultLookback      = 30 * 24 * time.Hour
	DefaultBatchWidth    = 14 * 24 * time.Hour
	DefaultStep          = time.Millisecond
	DefaultConcurrency   = 8
	DefaultMaxInterfaces = 1099
)
