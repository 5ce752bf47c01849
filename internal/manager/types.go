package manager

import "time"

// State represents lifecycle state of the pipeline.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Output is the result of one successful generation.
type Output struct {
	// ID identifies the generation in logs and events.
	ID string
	// Image is the base64-encoded PNG.
	Image string
	// Seed reported by the pipeline, -1 when unknown.
	Seed     int64
	Duration time.Duration
}
