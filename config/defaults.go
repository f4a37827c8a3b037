package config

// DefaultSystemPreamble is prepended to every conversation window that does
// not already start with a system message.
const DefaultSystemPreamble = `You are an AI software engineer assistant. You help users build complete, production-ready applications.

When users request code or applications:
1. Provide complete, working code with proper file structure
2. Include all necessary dependencies and configuration files
3. Add clear setup and running instructions
4. Use modern best practices and clean code principles
5. Make the code production-ready with error handling

Focus on delivering functional, well-organized code that users can immediately run and deploy.`

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/pulse",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultProvider:     "openai",
		DefaultSystemPrompt: DefaultSystemPreamble,
		HistoryWindow:       10,
		Memory: MemoryConfig{
			Enabled:          true,
			TopK:             3,
			Threshold:        0.4,
			SearchDebounceMs: 300,
			MinQueryLength:   2,
		},
		Security: SecurityConfig{
			CredentialStorage: string(SecurityPlainText),
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# Pulse System Configuration
# Location: ~/.config/pulse/settings.toml
# This file uses TOML format: https://toml.io

# Directory where sessions, memories and user config are stored
data_directory = "~/.local/share/pulse"
`
}

func GenerateUserConfigTemplate() string {
	return `# Pulse User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Provider selected at startup (openai, anthropic, deepseek, grok, mistral)
default_provider = "openai"

# Number of prior messages included in each request window
history_window = 10

# System prompt prepended to every conversation (optional, has a built-in default)
# default_system_prompt = "You are a helpful assistant."

[memory]
# Augment outgoing prompts with previously stored knowledge
enabled = true

# Snippets retrieved per turn
top_k = 3

# Minimum similarity for a snippet to be used (0.0 - 1.0)
threshold = 0.4

# Interactive search debounce in milliseconds
search_debounce_ms = 300

# Queries shorter than this never reach the search backend
min_query_length = 2

[security]
# How API keys are stored: "plaintext" (credentials.toml, 0600) or "ssh_key"
# (credentials.enc, AES-256-GCM with a key derived from your SSH key)
credential_storage = "plaintext"

# SSH private key used for "ssh_key" storage; when omitted the first key
# found under ~/.ssh is used (pulse_ed25519 preferred)
# ssh_key_path = "~/.ssh/pulse_ed25519"

# Per-provider overrides (optional)
# [[providers]]
# id = "openai"
# base_url = "https://api.openai.com/v1/chat/completions"
# default_model = "gpt-4o-mini"
# enabled = true
`
}
