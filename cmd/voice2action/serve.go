package main

import (
	"context"

	"voice2action/internal/adapter/tool"
	"voice2action/internal/domain"
	"voice2action/internal/infra/config"
)

// hostKind selects which worker's tools a serve command exposes.
type hostKind int

const (
	utilityHost hostKind = iota
	officeHost
)

func (h hostKind) String() string {
	if h == officeHost {
		return "office"
	}
	return "utility"
}

// serverConfig returns the MCP server settings for h.
func (h hostKind) serverConfig(cfg *config.Config) tool.MCPServerConfig {
	sc := tool.MCPServerConfig{
		Name:      "voice2action-" + h.String(),
		Addr:      cfg.MCP.UtilityAddr,
		RateLimit: cfg.MCP.RateLimit,
		RateBurst: cfg.MCP.RateBurst,
	}
	if h == officeHost {
		sc.Addr = cfg.MCP.OfficeAddr
	}
	return sc
}

func (h hostKind) tools(svc *ServiceComponents, infra *InfraComponents) []domain.Tool {
	if h == officeHost {
		return officeTools(svc, infra)
	}
	return utilityTools(svc, infra)
}

// runServe hosts one worker's tools over MCP until ctx is cancelled. The
// office host also fires stored reminders when reminders.notify is set.
func runServe(ctx context.Context, opts cliOptions, host hostKind) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	infra, cleanupInfra, err := initInfra(ctx, cfg, opts, "voice2action-"+host.String())
	if err != nil {
		return err
	}
	defer cleanupInfra()

	svc, cleanupServices, err := initServices(cfg, infra)
	if err != nil {
		return err
	}
	defer cleanupServices()

	if host == officeHost {
		if err := svc.startReminders(ctx); err != nil {
			return err
		}
	}

	srv := tool.NewToolServer(host.serverConfig(cfg), host.tools(svc, infra), infra.Logger)
	return srv.Start(ctx)
}
