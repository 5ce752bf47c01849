package manager

import "github.com/rs/zerolog"

// LogPublisher writes events as debug-level structured log lines.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(l zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: l.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(e Event) {
	ev := p.log.Debug().Str("event", e.Name)
	if e.ID != "" {
		ev = ev.Str("generation_id", e.ID)
	}
	ev.Fields(e.Fields).Msg("event")
}
