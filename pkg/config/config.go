// Package config provides configuration types and file handling for ClawBee
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotConfigured is returned by Load when no configuration file exists.
var ErrNotConfigured = errors.New("clawbee is not configured (run: clawbee onboard)")

// Config is the on-disk configuration shape. Sections the core does not
// interpret (integrations payloads, security extras) round-trip unmodified.
type Config struct {
	User         UserConfig                   `json:"user"`
	AI           AIConfig                     `json:"ai"`
	Integrations map[string]IntegrationConfig `json:"integrations"`
	Memory       MemoryConfig                 `json:"memory"`
	Security     SecurityConfig               `json:"security"`
	Version      string                       `json:"version"`
	CreatedAt    string                       `json:"createdAt"`

	// Unknown top-level sections, carried through save cycles untouched
	extra map[string]json.RawMessage
}

func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range []string{"user", "ai", "integrations", "memory", "security", "version", "createdAt"} {
		delete(raw, known)
	}
	*c = Config(p)
	if len(raw) > 0 {
		c.extra = raw
	}
	return nil
}

func (c Config) MarshalJSON() ([]byte, error) {
	type plain Config
	data, err := json.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	if len(c.extra) == 0 {
		return data, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

type UserConfig struct {
	Name string `json:"name"`
}

type AIConfig struct {
	Provider    string  `json:"provider"` // openai | anthropic | google | local | emergent
	APIKey      string  `json:"apiKey,omitempty"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	LocalHost   string  `json:"localHost,omitempty"`
	LocalPort   int     `json:"localPort,omitempty"`
}

type IntegrationConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token,omitempty"`
	AppToken string `json:"appToken,omitempty"` // Slack app-level token
	Webhook  string `json:"webhook,omitempty"`
}

type MemoryConfig struct {
	Enabled    bool `json:"enabled"`
	MaxContext int  `json:"maxContext"` // retention cap on the stored log
}

type SecurityConfig struct {
	Sandbox         bool     `json:"sandbox"`
	AllowedCommands []string `json:"allowedCommands,omitempty"`
	BlockedCommands []string `json:"blockedCommands,omitempty"`
}

// Default returns a fresh configuration with sane defaults.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			Provider:    "emergent",
			Model:       DefaultModels["emergent"],
			Temperature: 0.7,
			MaxTokens:   2048,
			LocalHost:   "localhost",
			LocalPort:   11434,
		},
		Integrations: make(map[string]IntegrationConfig),
		Memory:       MemoryConfig{Enabled: true, MaxContext: DefaultMaxMessages},
		Security:     SecurityConfig{Sandbox: true},
		Version:      Version,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
}

// Load reads the configuration file. A missing file is ErrNotConfigured; a
// malformed file is a hard error so a typo never silently resets settings.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Integrations == nil {
		cfg.Integrations = make(map[string]IntegrationConfig)
	}
	if cfg.Memory.MaxContext <= 0 {
		cfg.Memory.MaxContext = DefaultMaxMessages
	}
	if cfg.AI.Temperature <= 0 {
		cfg.AI.Temperature = 0.7
	}
	if cfg.AI.MaxTokens <= 0 {
		cfg.AI.MaxTokens = 2048
	}
	return &cfg, nil
}

// Save writes the configuration file, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks the fields the core depends on.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai", "anthropic", "google", "gemini", "emergent":
		if c.AI.APIKey == "" {
			return fmt.Errorf("ai.apiKey is required for provider %q", c.AI.Provider)
		}
	case "local", "ollama":
		// no key needed
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	if c.AI.Model == "" {
		return errors.New("ai.model is required")
	}
	return nil
}
