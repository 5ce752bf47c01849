package manager

import (
	"time"

	"github.com/rs/zerolog"

	"sdserve/internal/pipeline"
)

// Defaults applied when admission is enabled but MaxWait is unset.
const (
	defaultMaxWait = 30 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Pipeline  pipeline.Pipeline
	Publisher EventPublisher
	Logger    zerolog.Logger
	// MaxQueueDepth bounds requests waiting for the pipeline. Zero or negative
	// disables admission: requests reach the pipeline concurrently.
	MaxQueueDepth int
	// MaxWait bounds how long a request waits for admission before 429.
	MaxWait time.Duration
}

// New constructs a Manager from Config. The pipeline is not loaded; call Load.
func New(cfg Config) *Manager {
	m := &Manager{
		state:     StateLoading,
		pipe:      cfg.Pipeline,
		pub:       cfg.Publisher,
		log:       cfg.Logger.With().Str("component", "manager").Logger(),
		startTime: time.Now(),
	}
	if m.pub == nil {
		m.pub = noopPublisher{}
	}
	if cfg.MaxQueueDepth > 0 {
		m.maxQueueDepth = cfg.MaxQueueDepth
		m.queueCh = make(chan struct{}, cfg.MaxQueueDepth)
		m.genCh = make(chan struct{}, 1)
		m.maxWait = cfg.MaxWait
		if m.maxWait <= 0 {
			m.maxWait = defaultMaxWait
		}
	}
	return m
}
