package manager

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sdserve/internal/pipeline"
)

// fakePipeline is a lightweight in-memory pipeline used for tests.
type fakePipeline struct {
	mu       sync.Mutex
	loadErr  error
	genErr   error
	loads    int
	received []pipeline.Params
	// block, when non-nil, holds Generate until closed or ctx is done.
	block chan struct{}
	img   image.Image
}

func newFakePipeline() *fakePipeline {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})
	return &fakePipeline{img: img}
}

func (f *fakePipeline) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.loadErr
}

func (f *fakePipeline) Generate(ctx context.Context, p pipeline.Params) (pipeline.Result, error) {
	f.mu.Lock()
	f.received = append(f.received, p)
	block, genErr, img := f.block, f.genErr, f.img
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return pipeline.Result{}, ctx.Err()
		}
	}
	if genErr != nil {
		return pipeline.Result{}, genErr
	}
	return pipeline.Result{Image: img, Seed: 42}, nil
}

func (f *fakePipeline) Info() pipeline.Info {
	return pipeline.Info{Backend: "fake://", Model: "fake-model"}
}

func (f *fakePipeline) params() []pipeline.Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Params(nil), f.received...)
}

func newTestManager(t *testing.T, fp *fakePipeline, cfg Config) (*Manager, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	cfg.Pipeline = fp
	cfg.Publisher = pub
	cfg.Logger = zerolog.Nop()
	m := New(cfg)
	if err := m.Load(testCtx(t)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m, pub
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
