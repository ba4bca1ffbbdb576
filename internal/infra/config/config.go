package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	LLM           LLMConfig           `yaml:"llm"`
	Agents        AgentsConfig        `yaml:"agents"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Prompts       PromptsConfig       `yaml:"prompts"`
	Reminders     RemindersConfig     `yaml:"reminders"`
	Email         EmailConfig         `yaml:"email"`
	MCP           MCPConfig           `yaml:"mcp"`
	Logger        LoggerConfig        `yaml:"logger"`
	Tracer        TracerConfig        `yaml:"tracer"`
}

// Worker error policies.
const (
	WorkerErrorPropagate = "propagate"
	WorkerErrorRecord    = "record"
)

// OrchestratorConfig holds delegation loop settings.
type OrchestratorConfig struct {
	MaxIterations     int    `yaml:"max_iterations"`
	RepeatThreshold   int    `yaml:"repeat_threshold"` // 0 disables the repetition guard
	WorkerErrorPolicy string `yaml:"worker_error_policy"`
	Guidance          string `yaml:"guidance,omitempty"` // empty = built-in guidance text
}

// AgentsConfig configures the coordinator and the built-in workers.
type AgentsConfig struct {
	Coordinator AgentConfig `yaml:"coordinator"`
	Utility     AgentConfig `yaml:"utility"`
	Office      AgentConfig `yaml:"office"`
}

// AgentConfig configures one LLM-backed agent.
type AgentConfig struct {
	Name              string  `yaml:"name"`
	Provider          string  `yaml:"provider,omitempty"` // empty = llm.default_provider
	Model             string  `yaml:"model,omitempty"`
	MaxToolIterations int     `yaml:"max_tool_iterations"`
	MaxTokens         int     `yaml:"max_tokens,omitempty"`
	Temperature       float64 `yaml:"temperature,omitempty"`
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for remote model calls.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// TranscriptionConfig configures the speech-to-text backend.
type TranscriptionConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Language string        `yaml:"language,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`

	// AudioRoots limits TranscribeVoiceRecording to files under these
	// directories. Empty allows any readable file.
	AudioRoots []string `yaml:"audio_roots,omitempty"`
}

// PromptsConfig locates the agent instruction templates.
type PromptsConfig struct {
	Dir string `yaml:"dir,omitempty"` // empty = embedded templates
}

// RemindersConfig configures reminder persistence and firing.
type RemindersConfig struct {
	DBPath string `yaml:"db_path"`
	Notify bool   `yaml:"notify"` // schedule in-process firing of reminders
}

// EmailConfig configures outbound email.
type EmailConfig struct {
	From            string `yaml:"from"`
	To              string `yaml:"to"`
	Outbox          string `yaml:"outbox"`     // JSONL file; empty = log only
	Quarantine      string `yaml:"quarantine"` // JSONL file for spam; empty = log only
	MaxSendsPerHour int    `yaml:"max_sends_per_hour"`
}

// MCPConfig configures tool hosting and remote tool servers.
type MCPConfig struct {
	UtilityAddr string      `yaml:"utility_addr"`
	OfficeAddr  string      `yaml:"office_addr"`
	RateLimit   float64     `yaml:"rate_limit"` // requests per second per client IP
	RateBurst   int         `yaml:"rate_burst"`
	Servers     []MCPServer `yaml:"servers,omitempty"`
}

// MCPServer configures a remote MCP server whose tools back a worker.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Worker    string            `yaml:"worker"`    // worker name the tools are attached to
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.voice2action.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".voice2action")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxIterations:     8,
			RepeatThreshold:   3,
			WorkerErrorPolicy: WorkerErrorPropagate,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Agents: AgentsConfig{
			Coordinator: AgentConfig{Name: "Planner", MaxToolIterations: 1},
			Utility:     AgentConfig{Name: "Utility", MaxToolIterations: 5},
			Office:      AgentConfig{Name: "OfficeAutomation", MaxToolIterations: 5},
		},
		Transcription: TranscriptionConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "whisper-1",
			Timeout: 120 * time.Second,
		},
		Reminders: RemindersConfig{
			DBPath: filepath.Join(dataDir, "reminders.db"),
		},
		Email: EmailConfig{
			Outbox:          filepath.Join(dataDir, "outbox.jsonl"),
			Quarantine:      filepath.Join(dataDir, "quarantine.jsonl"),
			MaxSendsPerHour: 10,
		},
		MCP: MCPConfig{
			UtilityAddr: ":5010",
			OfficeAddr:  ":5020",
			RateLimit:   10,
			RateBurst:   20,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("VOICE2ACTION_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps VOICE2ACTION_* env vars to config fields. The
// MCP_HTTP_PORT, MCP_HTTP_PORT_OFFICE, MCP_UTILITY_ENDPOINT and
// MCP_OFFICE_ENDPOINT variables are honored for container deployments.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICE2ACTION_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("VOICE2ACTION_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("VOICE2ACTION_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("VOICE2ACTION_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("VOICE2ACTION_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("VOICE2ACTION_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Orchestrator.MaxIterations = n
		}
	}
	if v := os.Getenv("VOICE2ACTION_REPEAT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Orchestrator.RepeatThreshold = n
		}
	}
	if v := os.Getenv("VOICE2ACTION_WORKER_ERROR_POLICY"); v != "" {
		cfg.Orchestrator.WorkerErrorPolicy = v
	}
	if v := os.Getenv("VOICE2ACTION_PROMPTS_DIR"); v != "" {
		cfg.Prompts.Dir = v
	}
	if v := os.Getenv("VOICE2ACTION_REMINDERS_DB"); v != "" {
		cfg.Reminders.DBPath = v
	}
	if v := os.Getenv("VOICE2ACTION_EMAIL_OUTBOX"); v != "" {
		cfg.Email.Outbox = v
	}
	if v := os.Getenv("VOICE2ACTION_TRANSCRIPTION_API_KEY"); v != "" {
		cfg.Transcription.APIKey = v
	}
	if v := os.Getenv("VOICE2ACTION_TRANSCRIPTION_MODEL"); v != "" {
		cfg.Transcription.Model = v
	}
	if v := os.Getenv("VOICE2ACTION_AUDIO_ROOTS"); v != "" {
		cfg.Transcription.AudioRoots = filepath.SplitList(v)
	}
	if v := os.Getenv("VOICE2ACTION_TRANSCRIPTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Transcription.Timeout = d
		}
	}

	// Per-provider API key overrides: VOICE2ACTION_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("VOICE2ACTION_LLM_PROVIDER_%s_API_KEY",
			strings.ToUpper(cfg.LLM.Providers[i].Name))
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}

	// Transcription shares the OpenAI key when none is set explicitly.
	if cfg.Transcription.APIKey == "" {
		for _, p := range cfg.LLM.Providers {
			if p.Type == "openai" && p.APIKey != "" {
				cfg.Transcription.APIKey = p.APIKey
				break
			}
		}
	}

	if v := os.Getenv("MCP_HTTP_PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			cfg.MCP.UtilityAddr = ":" + v
		}
	}
	if v := os.Getenv("MCP_HTTP_PORT_OFFICE"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			cfg.MCP.OfficeAddr = ":" + v
		}
	}
	setRemoteEndpoint(cfg, "utility", cfg.Agents.Utility.Name, os.Getenv("MCP_UTILITY_ENDPOINT"))
	setRemoteEndpoint(cfg, "office", cfg.Agents.Office.Name, os.Getenv("MCP_OFFICE_ENDPOINT"))
}

// setRemoteEndpoint points the named remote MCP server at url, adding an
// HTTP server entry for worker when none is configured.
func setRemoteEndpoint(cfg *Config, name, worker, url string) {
	if url == "" {
		return
	}
	for i := range cfg.MCP.Servers {
		if cfg.MCP.Servers[i].Name == name {
			cfg.MCP.Servers[i].URL = url
			cfg.MCP.Servers[i].Transport = "http"
			return
		}
	}
	cfg.MCP.Servers = append(cfg.MCP.Servers, MCPServer{
		Name:      name,
		Worker:    worker,
		Transport: "http",
		URL:       url,
	})
}

// ProviderByName returns the provider config with the given name.
func (c *Config) ProviderByName(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
