package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"voice2action/internal/infra/config"
	"voice2action/internal/infra/logger"
	"voice2action/internal/infra/tracer"
	"voice2action/internal/usecase/eventbus"
)

// InfraComponents holds the process-wide plumbing every command needs.
type InfraComponents struct {
	Logger   *slog.Logger
	Bus      *eventbus.Bus
	Recorder *eventbus.Recorder // nil unless --events is set
}

// initInfra sets up logging, tracing and the event bus.
// Returns components, cleanup function, and any error
func initInfra(ctx context.Context, cfg *config.Config, opts cliOptions, service string) (*InfraComponents, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	log, logCloser, err := logger.New(cfg.Logger, service)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	cleanups = append(cleanups, func() { _ = logCloser() })

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("tracer: %w", err)
	}
	cleanups = append(cleanups, func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	})

	bus := eventbus.New(log)
	cleanups = append(cleanups, bus.Close)

	comp := &InfraComponents{Logger: log, Bus: bus}

	if opts.EventsPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.EventsPath), 0o700); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("events dir: %w", err)
		}
		f, err := os.OpenFile(opts.EventsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("events file: %w", err)
		}
		comp.Recorder = eventbus.NewRecorder(f)
		unsubscribe := bus.SubscribeAll(comp.Recorder.Handle)
		// Runs after bus.Close so in-flight handlers have drained.
		cleanups = append([]func(){func() { _ = f.Close() }, unsubscribe}, cleanups...)
	}

	log.Debug("infra initialized",
		"tracer", cfg.Tracer.Enabled,
		"events", opts.EventsPath,
	)
	return comp, cleanup, nil
}
