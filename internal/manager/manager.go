package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sdserve/internal/pipeline"
)

type Manager struct {
	mu    sync.RWMutex
	state State
	err   string

	pipe pipeline.Pipeline
	pub  EventPublisher
	log  zerolog.Logger

	startTime time.Time
	total     atomic.Uint64
	failed    atomic.Uint64
	inflight  atomic.Int64

	// Admission; nil channels mean disabled.
	maxQueueDepth int
	maxWait       time.Duration
	queueCh       chan struct{}
	genCh         chan struct{}
}

// Load initialises the pipeline once. Calling it again after success is a no-op.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateReady {
		m.mu.Unlock()
		return nil
	}
	m.state = StateLoading
	m.err = ""
	m.mu.Unlock()

	if m.pipe == nil {
		return m.failLoad(errors.New("no pipeline configured"))
	}
	info := m.pipe.Info()
	m.pub.Publish(Event{Name: "load_start", Fields: map[string]any{"backend": info.Backend, "model": info.Model}})
	start := time.Now()
	if err := m.pipe.Load(ctx); err != nil {
		return m.failLoad(fmt.Errorf("load pipeline: %w", err))
	}
	m.mu.Lock()
	m.state = StateReady
	m.mu.Unlock()
	info = m.pipe.Info()
	m.log.Info().Str("backend", info.Backend).Str("model", info.Model).Dur("dur", time.Since(start)).Msg("pipeline ready")
	m.pub.Publish(Event{Name: "load_ready", Fields: map[string]any{"backend": info.Backend, "model": info.Model}})
	return nil
}

func (m *Manager) failLoad(err error) error {
	m.mu.Lock()
	m.state = StateError
	m.err = err.Error()
	m.mu.Unlock()
	m.log.Error().Err(err).Msg("pipeline load failed")
	m.pub.Publish(Event{Name: "load_error", Fields: map[string]any{"error": err.Error()}})
	return err
}

// Ready reports whether the pipeline has loaded.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.err = err.Error()
	m.mu.Unlock()
}
