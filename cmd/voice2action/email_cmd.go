package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"voice2action/internal/usecase/emailflow"
)

func runEmail(ctx context.Context, opts cliOptions, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: voice2action email <text|-|file>")
	}

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

	flow, err := newEmailFlow(cfg, agents, infra, svc)
	if err != nil {
		return err
	}

	var outcome *emailflow.Outcome
	switch arg := args[0]; {
	case arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		outcome, err = flow.Handle(ctx, string(data))
		if err != nil {
			return err
		}
	case isFile(arg):
		audio := &emailflow.ProcessIncomingAudio{Transcriber: svc.Transcriber, Email: flow}
		outcome, err = audio.Handle(ctx, arg)
		if err != nil {
			return err
		}
	default:
		outcome, err = flow.Handle(ctx, arg)
		if err != nil {
			return err
		}
	}

	if opts.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}
	fmt.Fprint(stdout, renderEmailOutcome(outcome))
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func renderEmailOutcome(o *emailflow.Outcome) string {
	if o.Spam {
		body := styleWarning.Render("spam") + "  quarantined"
		if o.Reason != "" {
			body += "\n" + styleDim.Render(o.Reason)
		}
		return styleBox.Render(body) + "\n"
	}
	body := styleSuccess.Render("answered")
	if o.Email != nil {
		body += "  " + styleBold.Render(o.Email.Subject)
	}
	body += "\n\n" + o.Reply
	return styleBox.Render(body) + "\n"
}
