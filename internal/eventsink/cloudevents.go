// Package eventsink forwards manager events to a CloudEvents sink over HTTP.
package eventsink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ce "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sdserve/internal/manager"
)

// TypePrefix is prepended to event names to form the CloudEvent type.
const TypePrefix = "sdserve."

// Config configures the CloudEvents publisher.
type Config struct {
	SinkURL string
	Source  string
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Publisher implements manager.EventPublisher. Publish never blocks the
// caller: delivery happens on a background goroutine.
type Publisher struct {
	ce      client.Client
	source  string
	timeout time.Duration
	log     zerolog.Logger
	wg      sync.WaitGroup
}

var _ manager.EventPublisher = (*Publisher)(nil)

// New creates a publisher targeting cfg.SinkURL.
func New(cfg Config) (*Publisher, error) {
	if cfg.SinkURL == "" {
		return nil, errors.New("missing sink url")
	}
	c, err := ce.NewClientHTTP(ce.WithTarget(cfg.SinkURL))
	if err != nil {
		return nil, fmt.Errorf("create cloudevents client: %w", err)
	}
	p := &Publisher{
		ce:      c,
		source:  cfg.Source,
		timeout: cfg.Timeout,
		log:     cfg.Logger.With().Str("component", "eventsink").Logger(),
	}
	if p.source == "" {
		p.source = "sdserve"
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	return p, nil
}

// Publish converts e to a CloudEvent and sends it asynchronously.
func (p *Publisher) Publish(e manager.Event) {
	event, err := p.toCloudEvent(e)
	if err != nil {
		p.log.Error().Err(err).Str("event", e.Name).Msg("build cloudevent")
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if result := p.ce.Send(ctx, event); !ce.IsACK(result) {
			p.log.Warn().Err(result).Str("event", e.Name).Str("id", event.ID()).
				Bool("undelivered", ce.IsUndelivered(result)).Msg("cloudevent not accepted")
			return
		}
		p.log.Debug().Str("event", e.Name).Str("id", event.ID()).Msg("cloudevent sent")
	}()
}

// Flush waits for in-flight deliveries, up to ctx.
func (p *Publisher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) toCloudEvent(e manager.Event) (ce.Event, error) {
	event := ce.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(p.source)
	event.SetType(TypePrefix + e.Name)
	event.SetTime(time.Now())
	if e.ID != "" {
		event.SetSubject(e.ID)
	}
	data := e.Fields
	if data == nil {
		data = map[string]any{}
	}
	if err := event.SetData(ce.ApplicationJSON, data); err != nil {
		return event, fmt.Errorf("set event data: %w", err)
	}
	return event, nil
}
