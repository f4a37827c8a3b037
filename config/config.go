package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

// MemoryConfig controls the retrieval client.
type MemoryConfig struct {
	Enabled          bool    `toml:"enabled"`
	TopK             int     `toml:"top_k"`
	Threshold        float64 `toml:"threshold"`
	SearchDebounceMs int     `toml:"search_debounce_ms"`
	MinQueryLength   int     `toml:"min_query_length"`
}

// SecurityConfig selects how credentials are persisted: plaintext TOML or a
// file encrypted with a key derived from the user's SSH key.
type SecurityConfig struct {
	CredentialStorage string `toml:"credential_storage"`
	SSHKeyPath        string `toml:"ssh_key_path,omitempty"`
}

// ProviderOverride lets the user replace a catalogue provider's endpoint or
// default model without touching code. Secrets never live here.
type ProviderOverride struct {
	ID           string `toml:"id"`
	BaseURL      string `toml:"base_url,omitempty"`
	DefaultModel string `toml:"default_model,omitempty"`
	Enabled      bool   `toml:"enabled"`
}

type UserConfig struct {
	DefaultProvider     string             `toml:"default_provider"`
	DefaultSystemPrompt string             `toml:"default_system_prompt,omitempty"`
	HistoryWindow       int                `toml:"history_window"`
	Memory              MemoryConfig       `toml:"memory"`
	Security            SecurityConfig     `toml:"security"`
	Providers           []ProviderOverride `toml:"providers,omitempty"`
}

type Config struct {
	DataDirectory       string
	DefaultProvider     string
	DefaultSystemPrompt string
	HistoryWindow       int
	Memory              MemoryConfig
	Security            SecurityConfig
	Providers           []ProviderOverride
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// CredentialMethod maps the [security] table onto the credential store's
// storage method. An ssh_key selection without an explicit key path falls
// back to the first key found under ~/.ssh.
func (c *Config) CredentialMethod() (SecurityMethod, string) {
	if c.Security.CredentialStorage != string(SecuritySSHKey) {
		return SecurityPlainText, ""
	}

	keyPath := ExpandPath(c.Security.SSHKeyPath)
	if c.Security.SSHKeyPath == "" {
		if keys, err := FindSSHKeys(); err == nil && len(keys) > 0 {
			keyPath = keys[0]
		}
	}
	return SecuritySSHKey, keyPath
}

func (c *Config) applyEnvOverrides() {
	if provider := os.Getenv("PULSE_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}
	if dataDir := os.Getenv("PULSE_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
}

func CheckDebug() bool {
	debug := os.Getenv("PULSE_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600 - the log may contain conversation fragments (never secrets)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (PULSE_DEBUG=%s) ===", os.Getenv("PULSE_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

func Load() (*Config, error) {
	defaults := DefaultUserConfig()
	cfg := &Config{
		DataDirectory:       "~/.local/share/pulse",
		DefaultProvider:     defaults.DefaultProvider,
		DefaultSystemPrompt: defaults.DefaultSystemPrompt,
		HistoryWindow:       defaults.HistoryWindow,
		Memory:              defaults.Memory,
	}

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	cfg.DataDirectory = systemCfg.DataDirectory
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = GetDefaultDataDir()
	}
	cfg.applyEnvOverrides()

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	if userCfg.DefaultProvider != "" {
		cfg.DefaultProvider = userCfg.DefaultProvider
	}
	if userCfg.DefaultSystemPrompt != "" {
		cfg.DefaultSystemPrompt = userCfg.DefaultSystemPrompt
	}
	if userCfg.HistoryWindow > 0 {
		cfg.HistoryWindow = userCfg.HistoryWindow
	}
	cfg.Memory = normalizeMemoryConfig(userCfg.Memory)
	cfg.Security = userCfg.Security
	if cfg.Security.CredentialStorage == "" {
		cfg.Security.CredentialStorage = string(SecurityPlainText)
	}
	cfg.Providers = userCfg.Providers
	cfg.applyEnvOverrides()

	return cfg, nil
}

// normalizeMemoryConfig backfills zero values with defaults so a partially
// written [memory] table still behaves.
func normalizeMemoryConfig(m MemoryConfig) MemoryConfig {
	defaults := DefaultUserConfig().Memory
	if m.TopK <= 0 {
		m.TopK = defaults.TopK
	}
	if m.Threshold <= 0 {
		m.Threshold = defaults.Threshold
	}
	if m.SearchDebounceMs <= 0 {
		m.SearchDebounceMs = defaults.SearchDebounceMs
	}
	if m.MinQueryLength <= 0 {
		m.MinQueryLength = defaults.MinQueryLength
	}
	return m
}
