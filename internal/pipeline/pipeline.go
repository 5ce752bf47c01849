package pipeline

import (
	"context"
	"errors"
	"image"
)

// ErrNotLoaded is returned by Generate when Load has not completed successfully.
var ErrNotLoaded = errors.New("pipeline not loaded")

// Pipeline abstracts the external pretrained text-to-image model.
// Implementations must be safe for concurrent use after Load returns.
type Pipeline interface {
	// Load performs one-time initialisation (reachability, checkpoint selection).
	Load(ctx context.Context) error
	// Generate produces a single image for the given parameters. Implementations
	// must return when ctx is canceled.
	Generate(ctx context.Context, p Params) (Result, error)
	// Info describes the backend for status reporting.
	Info() Info
}

// Params captures generation parameters passed to the backend.
type Params struct {
	Prompt         string
	Steps          int
	GuidanceScale  float64
	NegativePrompt string
	Width          int
	Height         int
	Sampler        string
	// Seed of -1 lets the backend choose.
	Seed int64
}

// Result is the decoded output of one generation.
type Result struct {
	Image image.Image
	// Seed reported by the backend, or -1 when unknown.
	Seed int64
}

// Info summarises the configured backend.
type Info struct {
	Backend string
	Model   string
}
