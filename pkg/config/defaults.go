// Centralized defaults and path helpers for ClawBee

package config

import (
	"os"
	"path/filepath"
)

// Version is the ClawBee release version.
const Version = "2.2.0"

const (
	// DefaultMaxMessages is the retention cap on the conversation log.
	DefaultMaxMessages = 100

	// DefaultContextWindow is how many stored turns go into each prompt.
	DefaultContextWindow = 10
)

// DefaultModels maps each provider to its default model.
var DefaultModels = map[string]string{
	"openai":    "gpt-5.2",
	"anthropic": "claude-4-sonnet-20250514",
	"google":    "gemini-2.5-pro",
	"emergent":  "gpt-5.2",
	"local":     "llama2",
}

// AvailableModels lists the models usable with the emergent universal key,
// grouped by the provider that serves them.
var AvailableModels = map[string][]string{
	"openai": {
		"gpt-5.2", "gpt-5.1", "gpt-5", "gpt-5-mini", "gpt-5-nano",
		"gpt-4", "gpt-4o", "gpt-4.1", "gpt-4.1-mini", "gpt-4.1-nano",
		"o3", "o3-pro", "o4-mini", "o1",
	},
	"anthropic": {
		"claude-opus-4-6", "claude-sonnet-4-5-20250929", "claude-haiku-4-5-20251001",
		"claude-opus-4-5-20251101", "claude-4-sonnet-20250514", "claude-4-opus-20250514",
		"claude-3-5-haiku-20241022",
	},
	"google": {
		"gemini-3-flash-preview", "gemini-3-pro-preview",
		"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite",
		"gemini-2.0-flash", "gemini-2.0-flash-lite",
	},
}

// DefaultConfigPath returns the config file path (~/.config/clawbee/config.json)
func DefaultConfigPath() string {
	if p := os.Getenv("CLAWBEE_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "clawbee", "config.json")
}

// DefaultDataDir returns the data directory (~/.local/share/clawbee)
func DefaultDataDir() string {
	if d := os.Getenv("CLAWBEE_DATA_DIR"); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "clawbee")
}

// MemoryPath returns the conversation log path under the data directory.
func MemoryPath(dataDir string) string {
	return filepath.Join(dataDir, "memory", "conversations.json")
}

// ArchivePath returns the sqlite archive path under the data directory.
func ArchivePath(dataDir string) string {
	return filepath.Join(dataDir, "clawbee.db")
}

// KVDir returns the channel-state store directory under the data directory.
func KVDir(dataDir string) string {
	return filepath.Join(dataDir, "state")
}

// SkillsDir returns the skills directory under the data directory.
func SkillsDir(dataDir string) string {
	return filepath.Join(dataDir, "skills")
}

// EnvOrDefault returns the value of an environment variable or a fallback.
func EnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
