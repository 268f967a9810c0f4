package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.AI.Provider != "emergent" {
		t.Errorf("Expected default provider 'emergent', got '%s'", cfg.AI.Provider)
	}
	if cfg.AI.Model != DefaultModels["emergent"] {
		t.Errorf("Expected default model '%s', got '%s'", DefaultModels["emergent"], cfg.AI.Model)
	}
	if !cfg.Memory.Enabled {
		t.Error("Expected memory enabled by default")
	}
	if cfg.Memory.MaxContext != DefaultMaxMessages {
		t.Errorf("Expected max context %d, got %d", DefaultMaxMessages, cfg.Memory.MaxContext)
	}
	if cfg.Version != Version {
		t.Errorf("Expected version %s, got %s", Version, cfg.Version)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{broken"), 0o600)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected hard error for malformed config")
	}
	if errors.Is(err, ErrNotConfigured) {
		t.Error("Malformed config must not read as unconfigured")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.User.Name = "Dana"
	cfg.AI.APIKey = "sk-test"
	cfg.Integrations["telegram"] = IntegrationConfig{Enabled: true, Token: "tg-token"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.User.Name != "Dana" {
		t.Errorf("Expected user 'Dana', got '%s'", loaded.User.Name)
	}
	if loaded.Integrations["telegram"].Token != "tg-token" {
		t.Errorf("Expected telegram token to round-trip")
	}

	// config holds key material
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected 0600 permissions, got %o", info.Mode().Perm())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid emergent", func(c *Config) { c.AI.APIKey = "sk" }, false},
		{"missing key", func(c *Config) {}, true},
		{"local needs no key", func(c *Config) { c.AI.Provider = "local"; c.AI.Model = "llama2" }, false},
		{"ollama alias", func(c *Config) { c.AI.Provider = "ollama"; c.AI.Model = "llama2" }, false},
		{"gemini alias", func(c *Config) { c.AI.Provider = "gemini"; c.AI.APIKey = "sk" }, false},
		{"unknown provider", func(c *Config) { c.AI.Provider = "cohere"; c.AI.APIKey = "sk" }, true},
		{"missing model", func(c *Config) { c.AI.APIKey = "sk"; c.AI.Model = "" }, true},
	}

	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		err := cfg.Validate()
		if tt.wantErr && err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
	}
}

func TestLoadRepairsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"ai": {"provider": "openai", "apiKey": "sk", "model": "gpt-5.2"}}`), 0o600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Integrations == nil {
		t.Error("Expected integrations map initialized")
	}
	if cfg.Memory.MaxContext != DefaultMaxMessages {
		t.Errorf("Expected max context defaulted to %d, got %d", DefaultMaxMessages, cfg.Memory.MaxContext)
	}
	// hand-written configs often omit generation params; zero values must
	// never reach the adapters
	if cfg.AI.Temperature != 0.7 {
		t.Errorf("Expected temperature defaulted to 0.7, got %v", cfg.AI.Temperature)
	}
	if cfg.AI.MaxTokens != 2048 {
		t.Errorf("Expected maxTokens defaulted to 2048, got %d", cfg.AI.MaxTokens)
	}
}

func TestEnvConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.config")

	if err := WriteEnvConfig(path, map[string]string{
		"TELEGRAM_BOT_TOKEN": "tg-1",
		"ANTHROPIC_BASE_URL": "http://localhost:9",
	}); err != nil {
		t.Fatalf("WriteEnvConfig failed: %v", err)
	}

	values := ReadEnvConfig(path)
	if values["TELEGRAM_BOT_TOKEN"] != "tg-1" {
		t.Errorf("Expected token round-trip, got %q", values["TELEGRAM_BOT_TOKEN"])
	}

	if err := MergeEnvConfig(path, map[string]string{"TELEGRAM_BOT_TOKEN": "tg-2"}); err != nil {
		t.Fatalf("MergeEnvConfig failed: %v", err)
	}
	values = ReadEnvConfig(path)
	if values["TELEGRAM_BOT_TOKEN"] != "tg-2" {
		t.Errorf("Expected merged token, got %q", values["TELEGRAM_BOT_TOKEN"])
	}
	if values["ANTHROPIC_BASE_URL"] != "http://localhost:9" {
		t.Errorf("Expected untouched key to survive merge")
	}
}

func TestPathHelpers(t *testing.T) {
	t.Setenv("CLAWBEE_CONFIG", "/tmp/custom/config.json")
	if DefaultConfigPath() != "/tmp/custom/config.json" {
		t.Errorf("Expected env override, got %s", DefaultConfigPath())
	}

	t.Setenv("CLAWBEE_DATA_DIR", "/tmp/custom-data")
	if DefaultDataDir() != "/tmp/custom-data" {
		t.Errorf("Expected env override, got %s", DefaultDataDir())
	}
	if MemoryPath("/d") != filepath.Join("/d", "memory", "conversations.json") {
		t.Errorf("Unexpected memory path: %s", MemoryPath("/d"))
	}
}

func TestUnknownSectionsSurviveSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{
		"user": {"name": "Dana"},
		"ai": {"provider": "openai", "apiKey": "sk-1", "model": "gpt-5.2"},
		"memory": {"enabled": true, "maxContext": 100},
		"plugins": {"weather": {"city": "Oslo"}},
		"theme": "dark"
	}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.User.Name = "Alex"

	out := filepath.Join(dir, "saved.json")
	if err := cfg.Save(out); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(reloaded, &m); err != nil {
		t.Fatalf("Saved config is not valid JSON: %v", err)
	}
	if _, ok := m["plugins"]; !ok {
		t.Error("Expected unknown 'plugins' section to survive a save cycle")
	}
	if string(m["theme"]) != `"dark"` {
		t.Errorf("Expected 'theme' to survive unchanged, got %s", m["theme"])
	}
}
