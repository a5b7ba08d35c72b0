// Package config loads and validates the TOML configuration file that
// drives a TITAN core process.
//
// The config is intentionally small and declarative, mirroring the
// validation style of the teacher's Gosuto loader: parse, then run a
// sequence of named validators that each return the first error found.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode is the operator-selected autonomy mode.
type Mode string

const (
	ModeSupervised    Mode = "supervised"
	ModeCollaborative Mode = "collaborative"
	ModeAutonomous    Mode = "autonomous"
)

// Provider identifies the model-provider family. Provider selection itself
// is an external collaborator's concern (§1); the core only needs to know
// the name to populate session status output.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderCustom    Provider = "custom"
)

// ActivationMode controls when the gateway reacts to a channel message.
type ActivationMode string

const (
	ActivationAlways  ActivationMode = "always"
	ActivationMention ActivationMode = "mention"
)

// Config is the root TOML document.
type Config struct {
	WorkspaceDir string `toml:"workspace_dir"`
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"`
	Mode         Mode   `toml:"mode"`

	// HTTPAddr is the listen address for the dashboard-facing HTTP API
	// (internal/titan/httpapi). Empty disables the HTTP API entirely.
	HTTPAddr string `toml:"http_addr"`

	Model    ModelConfig    `toml:"model"`
	Discord  DiscordConfig  `toml:"discord"`
	Chat     ChatConfig     `toml:"chat"`
	Security SecurityConfig `toml:"security"`
	Skills   SkillsConfig   `toml:"skills"`
}

// SkillsConfig governs the local skill registry the gateway's
// "/skill install" command stages bundles from, and the trust-root
// directory VerifySignature checks signed manifests against.
type SkillsConfig struct {
	RegistryRoot string `toml:"registry_root"`
	TrustRoot    string `toml:"trust_root"`
}

// ModelConfig is model-provider selection — out of scope to call, but the
// core persists and reports it (§6).
type ModelConfig struct {
	Provider   Provider `toml:"provider"`
	ModelID    string   `toml:"model_id"`
	Endpoint   string   `toml:"endpoint"`
	APIKeyEnv  string   `toml:"api_key_env"`
}

// DiscordConfig is parsed but never acted on directly by the core — the
// Discord socket connection is an external collaborator (§1).
type DiscordConfig struct {
	Enabled          bool   `toml:"enabled"`
	Token            string `toml:"token"`
	DefaultChannelID string `toml:"default_channel_id"`
}

// ChatConfig governs activation/allowlist filtering in the Gateway Runtime.
type ChatConfig struct {
	ActivationMode ActivationMode `toml:"activation_mode"`
	Allowlist      []string       `toml:"allowlist"`
}

// SecurityConfig governs the bypass behaviour available only under yolo.
type SecurityConfig struct {
	YoloBypassPathGuard bool `toml:"yolo_bypass_path_guard"`
}

// DefaultPath returns $TITAN_CONFIG, or ~/.titan/config.toml when unset.
func DefaultPath() string {
	if p := os.Getenv("TITAN_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".titan/config.toml"
	}
	return filepath.Join(home, ".titan", "config.toml")
}

// Load reads and validates the config file at path. When path does not
// exist, Load validates the documented defaults on their own, exactly as
// it would a parsed file; model.model_id has no default, so a missing
// file makes Load return that validation error.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Mode:     ModeCollaborative,
		Chat:     ChatConfig{ActivationMode: ActivationAlways},
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if cfg.WorkspaceDir != "" {
		if err := os.MkdirAll(cfg.WorkspaceDir, 0o755); err != nil {
			return nil, fmt.Errorf("config: create workspace_dir %q: %w", cfg.WorkspaceDir, err)
		}
		if cfg.Skills.RegistryRoot == "" {
			cfg.Skills.RegistryRoot = filepath.Join(cfg.WorkspaceDir, "skills-registry")
		}
		if cfg.Skills.TrustRoot == "" {
			cfg.Skills.TrustRoot = filepath.Join(cfg.WorkspaceDir, "trust")
		}
	}
	return cfg, nil
}

// Validate checks cfg for structural correctness without touching the
// filesystem beyond what Load already does.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: must not be nil")
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		return fmt.Errorf("config: log_level must not be empty")
	}
	switch cfg.Mode {
	case ModeSupervised, ModeCollaborative, ModeAutonomous, "":
	default:
		return fmt.Errorf("config: mode %q is not one of supervised|collaborative|autonomous", cfg.Mode)
	}
	if strings.TrimSpace(cfg.Model.ModelID) == "" {
		return fmt.Errorf("config: model.model_id must not be empty")
	}
	if cfg.Model.Endpoint != "" {
		if !strings.HasPrefix(cfg.Model.Endpoint, "http://") && !strings.HasPrefix(cfg.Model.Endpoint, "https://") {
			return fmt.Errorf("config: model.endpoint %q must be a URL when set", cfg.Model.Endpoint)
		}
	}
	switch cfg.Chat.ActivationMode {
	case ActivationAlways, ActivationMention, "":
	default:
		return fmt.Errorf("config: chat.activation_mode %q is not one of always|mention", cfg.Chat.ActivationMode)
	}
	return nil
}
