package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"voice2action/internal/domain"
)

// runOutcome is the result of processing one recording.
type runOutcome struct {
	Path   string
	Result *domain.OrchestrationResult
	Err    error
}

func (o runOutcome) MarshalJSON() ([]byte, error) {
	type wire struct {
		Path   string                      `json:"path"`
		Result *domain.OrchestrationResult `json:"result,omitempty"`
		Error  string                      `json:"error,omitempty"`
		Code   string                      `json:"code,omitempty"`
	}
	w := wire{Path: o.Path, Result: o.Result}
	if o.Err != nil {
		w.Error = o.Err.Error()
		w.Code = string(domain.ErrorCodeOf(o.Err))
	}
	return json.Marshal(w)
}

func runVoice(ctx context.Context, opts cliOptions, paths []string, stdin io.Reader, stdout io.Writer) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	infra, cleanupInfra, err := initInfra(ctx, cfg, opts, "voice2action")
	if err != nil {
		return err
	}
	defer cleanupInfra()

	svc, cleanupServices, err := initServices(cfg, infra)
	if err != nil {
		return err
	}
	defer cleanupServices()

	agents, cleanupAgents, err := initAgents(ctx, cfg, infra, svc)
	if err != nil {
		return err
	}
	defer cleanupAgents()

	if err := svc.startReminders(ctx); err != nil {
		return err
	}

	if len(paths) == 0 {
		path, err := promptForPath(stdin, stdout)
		if err != nil {
			return err
		}
		paths = []string{path}
	}

	outcomes := runBatch(ctx, agents.Orchestrator, paths, opts.Parallel, infra.Logger)

	if opts.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcomes); err != nil {
			return err
		}
	} else {
		fmt.Fprint(stdout, renderReport(outcomes))
	}
	return batchError(outcomes)
}

// runBatch processes paths with at most parallel concurrent runs. Outcomes
// keep the order of paths. A failed recording does not stop the others.
func runBatch(ctx context.Context, orch domain.VoiceCommandOrchestrator, paths []string, parallel int, log *slog.Logger) []runOutcome {
	outcomes := make([]runOutcome, len(paths))
	var g errgroup.Group
	g.SetLimit(max(parallel, 1))
	for i, path := range paths {
		g.Go(func() error {
			res, err := orch.Execute(ctx, path)
			if err != nil {
				log.Error("recording failed", "path", path, "error", err, "code", domain.ErrorCodeOf(err))
			}
			outcomes[i] = runOutcome{Path: path, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// batchError joins the per-recording errors, or returns nil when every
// recording was processed.
func batchError(outcomes []runOutcome) error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Path, o.Err))
		}
	}
	return errors.Join(errs...)
}
