package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateOrchestrator(cfg, ve)
	validateLLM(cfg, ve)
	validateAgents(cfg, ve)
	validateTranscription(cfg, ve)
	validateEmail(cfg, ve)
	validateMCP(cfg, ve)
	validateObservability(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateOrchestrator(cfg *Config, ve *ValidationError) {
	o := cfg.Orchestrator
	if o.MaxIterations <= 0 {
		ve.Add("orchestrator.max_iterations must be > 0")
	}
	if o.RepeatThreshold < 0 {
		ve.Add("orchestrator.repeat_threshold must be >= 0")
	}
	if o.RepeatThreshold == 1 {
		ve.Add("orchestrator.repeat_threshold must be 0 (disabled) or >= 2")
	}
	switch o.WorkerErrorPolicy {
	case WorkerErrorPropagate, WorkerErrorRecord:
	default:
		ve.Add("orchestrator.worker_error_policy %q is invalid (want: %s, %s)",
			o.WorkerErrorPolicy, WorkerErrorPropagate, WorkerErrorRecord)
	}
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"bedrock":   true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, anthropic, bedrock)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "bedrock" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via VOICE2ACTION_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, strings.ToUpper(p.Name))
		}
		if p.Type == "bedrock" && p.Region == "" {
			ve.Add("llm.providers[%d] (%s): region is required for bedrock provider", i, p.Name)
		}
	}

	if cfg.LLM.DefaultProvider != "" && !seen[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Failover.Enabled {
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", name)
			}
		}
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	agents := []struct {
		key string
		cfg AgentConfig
	}{
		{"coordinator", cfg.Agents.Coordinator},
		{"utility", cfg.Agents.Utility},
		{"office", cfg.Agents.Office},
	}
	names := make(map[string]string)
	for _, entry := range agents {
		key, a := entry.key, entry.cfg
		if strings.TrimSpace(a.Name) == "" {
			ve.Add("agents.%s.name must not be empty", key)
			continue
		}
		lower := strings.ToLower(a.Name)
		if other, dup := names[lower]; dup {
			ve.Add("agents.%s.name %q collides with agents.%s.name", key, a.Name, other)
		}
		names[lower] = key
		if a.MaxToolIterations <= 0 {
			ve.Add("agents.%s.max_tool_iterations must be > 0", key)
		}
		if a.Provider != "" && len(cfg.LLM.Providers) > 0 {
			if _, ok := cfg.ProviderByName(a.Provider); !ok {
				ve.Add("agents.%s.provider %q does not match any configured provider", key, a.Provider)
			}
		}
	}
}

func validateTranscription(cfg *Config, ve *ValidationError) {
	if cfg.Transcription.Model == "" {
		ve.Add("transcription.model must not be empty")
	}
	if cfg.Transcription.Timeout <= 0 {
		ve.Add("transcription.timeout must be > 0")
	}
	for i, root := range cfg.Transcription.AudioRoots {
		if strings.TrimSpace(root) == "" {
			ve.Add("transcription.audio_roots[%d] must not be empty", i)
		}
	}
}

func validateEmail(cfg *Config, ve *ValidationError) {
	if cfg.Email.MaxSendsPerHour < 0 {
		ve.Add("email.max_sends_per_hour must be >= 0")
	}
}

func validateMCP(cfg *Config, ve *ValidationError) {
	for key, addr := range map[string]string{"utility_addr": cfg.MCP.UtilityAddr, "office_addr": cfg.MCP.OfficeAddr} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			ve.Add("mcp.%s %q is not a valid listen address: %v", key, addr, err)
		}
	}
	if cfg.MCP.RateLimit < 0 {
		ve.Add("mcp.rate_limit must be >= 0")
	}
	seen := make(map[string]bool)
	for i, s := range cfg.MCP.Servers {
		if s.Name == "" {
			ve.Add("mcp.servers[%d].name must not be empty", i)
			continue
		}
		if seen[s.Name] {
			ve.Add("mcp.servers[%d]: duplicate server name %q", i, s.Name)
		}
		seen[s.Name] = true
		if s.Worker == "" {
			ve.Add("mcp.servers[%d] (%s): worker must not be empty", i, s.Name)
		}
		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				ve.Add("mcp.servers[%d] (%s): command is required for stdio transport", i, s.Name)
			}
		case "http":
			if s.URL == "" {
				ve.Add("mcp.servers[%d] (%s): url is required for http transport", i, s.Name)
			}
		default:
			ve.Add("mcp.servers[%d] (%s): transport %q is invalid (want: stdio, http)", i, s.Name, s.Transport)
		}
	}
}

func validateObservability(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	if cfg.Tracer.Enabled {
		switch cfg.Tracer.Exporter {
		case "", "noop", "stdout", "stderr":
		default:
			ve.Add("tracer.exporter %q is invalid (want: noop, stdout, stderr)", cfg.Tracer.Exporter)
		}
	}
}
