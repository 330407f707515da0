// Package config loads the supervisor's process-wide settings, adapted
// from the teacher's yaml.v3-tagged Config struct and its
// defaulting-after-unmarshal idiom.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Env         EnvConfig         `yaml:"env"`
	Approval    ApprovalConfig    `yaml:"approval"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	ToolSurface ToolSurfaceConfig `yaml:"tool_surface"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvConfig is the four process-wide settings spec.md §6 requires, bound
// once at construction.
type EnvConfig struct {
	CLIPath           string `yaml:"cli_path"`
	ApprovalTimeoutMs int    `yaml:"approval_timeout_ms"`
	MaxSessions       int    `yaml:"max_sessions"`
	EventBufferSize   int    `yaml:"event_buffer_size"`
}

func (e EnvConfig) ApprovalTimeout() time.Duration {
	return time.Duration(e.ApprovalTimeoutMs) * time.Millisecond
}

// ApprovalConfig configures the loopback callback-bridge listener shared
// by every session (spec.md §5 "Shared resources").
type ApprovalConfig struct {
	CallbackListen string `yaml:"callback_listen"`
}

// MetricsConfig configures the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Listen  string `yaml:"listen"`
	Enabled bool   `yaml:"enabled"`
}

// ToolSurfaceConfig configures the control-plane WebSocket adapter.
type ToolSurfaceConfig struct {
	WSURL              string `yaml:"ws_url"`
	Token              string `yaml:"token"`
	ReconnectBackoffMs []int  `yaml:"reconnect_backoff_ms"`
}

// ProvidersConfig holds per-agent-family spawn policy settings.
type ProvidersConfig struct {
	Claude ClaudeConfig `yaml:"claude"`
	Codex  CodexConfig  `yaml:"codex"`
}

// ClaudeConfig configures the "claude" SpawnPolicy.
type ClaudeConfig struct {
	ExecPath        string `yaml:"exec_path"`
	UsageCommand    string `yaml:"usage_command"`
	UsageIntervalMs int    `yaml:"usage_interval_ms"`
}

// CodexConfig configures the "codex" SpawnPolicy.
type CodexConfig struct {
	ExecPath        string `yaml:"exec_path"`
	UsageCommand    string `yaml:"usage_command"`
	UsageIntervalMs int    `yaml:"usage_interval_ms"`
}

// StorageConfig locates the on-disk session index used by list().
type StorageConfig struct {
	SessionIndexPath string `yaml:"session_index_path"`
	SessionIndexDir  string `yaml:"session_index_dir"`
}

// Load reads and defaults a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if envToken := os.Getenv("AGENTD_APPROVAL_TOKEN"); envToken != "" {
		cfg.ToolSurface.Token = envToken
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Env.CLIPath == "" {
		cfg.Env.CLIPath = "claude"
	}
	if cfg.Env.ApprovalTimeoutMs == 0 {
		cfg.Env.ApprovalTimeoutMs = 300000
	}
	if cfg.Env.MaxSessions == 0 {
		cfg.Env.MaxSessions = 10
	}
	if cfg.Env.EventBufferSize == 0 {
		cfg.Env.EventBufferSize = 500
	}
	if cfg.Approval.CallbackListen == "" {
		cfg.Approval.CallbackListen = "127.0.0.1:7777"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9090"
	}
	if cfg.Providers.Claude.ExecPath == "" {
		cfg.Providers.Claude.ExecPath = cfg.Env.CLIPath
	}
	if cfg.Providers.Codex.ExecPath == "" {
		cfg.Providers.Codex.ExecPath = "codex"
	}
	if len(cfg.ToolSurface.ReconnectBackoffMs) == 0 {
		cfg.ToolSurface.ReconnectBackoffMs = []int{250, 500, 1000, 2000, 5000}
	}
}
