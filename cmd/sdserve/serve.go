package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sdserve/internal/config"
	"sdserve/internal/eventsink"
	"sdserve/internal/httpapi"
	"sdserve/internal/manager"
	"sdserve/internal/pipeline"
)

// serve loads the pipeline, then runs the HTTP server until ctx is canceled
// or SIGINT/SIGTERM arrives. A failed load aborts startup.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, sink, err := buildManager(cfg, log)
	if err != nil {
		return err
	}
	defer flushSink(sink, log)

	log.Info().Str("backend", cfg.BackendURL).Str("model", cfg.Model).Msg("loading pipeline")
	loadCtx, cancelLoad := ctx, context.CancelFunc(func() {})
	if cfg.LoadTimeout() > 0 {
		loadCtx, cancelLoad = context.WithTimeout(ctx, cfg.LoadTimeout())
	}
	err = mgr.Load(loadCtx)
	cancelLoad()
	if err != nil {
		log.Error().Err(err).Msg("pipeline load failed")
		return err
	}
	log.Info().Str("model", mgr.Status().Model).Msg("pipeline ready")

	handler := configureHTTP(cfg, mgr, log)
	for _, route := range httpapi.Routes(handler) {
		log.Info().Str("route", route).Msg("route registered")
	}

	// Handlers run on baseCtx, which outlives the signal so in-flight
	// generations can finish within the shutdown timeout.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		cancelBase()
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// buildManager wires the backend pipeline and event publishers into a Manager.
func buildManager(cfg config.Config, log zerolog.Logger) (*manager.Manager, *eventsink.Publisher, error) {
	pipe, err := pipeline.NewA1111(pipeline.A1111Config{
		BaseURL:        cfg.BackendURL,
		Model:          cfg.Model,
		Auth:           cfg.BackendAuth,
		RequestTimeout: cfg.RequestTimeout(),
		ConnectTimeout: cfg.ConnectTimeout(),
		Defaults: pipeline.Params{
			NegativePrompt: cfg.NegativePrompt,
			Width:          cfg.Width,
			Height:         cfg.Height,
			Sampler:        cfg.Sampler,
			Seed:           cfg.Seed,
		},
		Logger: log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: %w", err)
	}

	pubs := manager.MultiPublisher{manager.NewLogPublisher(log)}
	var sink *eventsink.Publisher
	if cfg.EventsSink != "" {
		sink, err = eventsink.New(eventsink.Config{SinkURL: cfg.EventsSink, Source: cfg.EventsSource, Logger: log})
		if err != nil {
			return nil, nil, fmt.Errorf("events sink: %w", err)
		}
		pubs = append(pubs, sink)
	}

	mgr := manager.New(manager.Config{
		Pipeline:      pipe,
		Publisher:     pubs,
		Logger:        log,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       cfg.MaxWait(),
	})
	return mgr, sink, nil
}

// configureHTTP applies HTTP-layer settings and returns the router.
func configureHTTP(cfg config.Config, svc httpapi.Service, log zerolog.Logger) http.Handler {
	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetGenerateTimeout(cfg.GenerateTimeout())
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, cfg.CORSMethods, cfg.CORSHeaders)
	return httpapi.NewMux(svc)
}

func flushSink(sink *eventsink.Publisher, log zerolog.Logger) {
	if sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("events not flushed before exit")
	}
}
