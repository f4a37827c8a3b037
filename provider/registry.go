// Package provider holds the static provider catalogue, the wire-shape
// adapters and the request dispatcher.
//
// Each provider is described by an immutable ProviderConfig carrying its
// endpoint, default model, token limit and request shape. The shape selects
// one of a closed set of adapter implementations (see adapter.go), so adding
// a provider that speaks an existing dialect is a catalogue entry, not code.
package provider

// RequestShape identifies the wire-format dialect a provider speaks.
type RequestShape string

const (
	// ShapeInlineSystem puts the system message inside the messages array
	// and reads the reply from choices[0].message.content.
	ShapeInlineSystem RequestShape = "inline_system"

	// ShapeSeparatedSystem carries the system text as a top-level field and
	// reads the reply from a content block array.
	ShapeSeparatedSystem RequestShape = "separated_system"
)

// ProviderConfig describes one text-generation provider. Defined at startup,
// immutable afterwards.
type ProviderConfig struct {
	ID           string
	BaseEndpoint string
	DefaultModel string
	MaxTokens    int
	Temperature  float64
	Shape        RequestShape
}

// Registry is a read-only lookup of provider configurations.
type Registry struct {
	configs map[string]ProviderConfig
	order   []string
}

// NewRegistry creates a registry populated with the built-in catalogue.
func NewRegistry() *Registry {
	r := &Registry{configs: make(map[string]ProviderConfig)}
	for _, cfg := range builtinProviders() {
		r.configs[cfg.ID] = cfg
		r.order = append(r.order, cfg.ID)
	}
	return r
}

// Get returns the configuration for a provider ID.
// Returns an error wrapping ErrUnknownProvider for unregistered identifiers.
func (r *Registry) Get(id string) (ProviderConfig, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return ProviderConfig{}, newUnknownProviderError(id)
	}
	return cfg, nil
}

// Has reports whether the provider ID is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.configs[id]
	return ok
}

// List returns all configurations in catalogue order.
func (r *Registry) List() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.configs[id])
	}
	return out
}

// ApplyOverride replaces the endpoint and/or default model of a registered
// provider. Used at startup to apply user config; empty values keep defaults.
func (r *Registry) ApplyOverride(id, baseEndpoint, defaultModel string) error {
	cfg, ok := r.configs[id]
	if !ok {
		return newUnknownProviderError(id)
	}
	if baseEndpoint != "" {
		cfg.BaseEndpoint = baseEndpoint
	}
	if defaultModel != "" {
		cfg.DefaultModel = defaultModel
	}
	r.configs[id] = cfg
	return nil
}

func newUnknownProviderError(id string) error {
	return &unknownProviderError{id: id}
}

type unknownProviderError struct {
	id string
}

func (e *unknownProviderError) Error() string {
	return "unsupported provider: " + e.id
}

func (e *unknownProviderError) Unwrap() error {
	return ErrUnknownProvider
}

// builtinProviders returns the static catalogue. MaxTokens and Temperature
// match the limits the providers document for their chat endpoints.
func builtinProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			ID:           "openai",
			BaseEndpoint: "https://api.openai.com/v1/chat/completions",
			DefaultModel: "gpt-3.5-turbo",
			MaxTokens:    4000,
			Temperature:  0.7,
			Shape:        ShapeInlineSystem,
		},
		{
			ID:           "anthropic",
			BaseEndpoint: "https://api.anthropic.com/v1/messages",
			DefaultModel: "claude-3-sonnet-20240229",
			MaxTokens:    4000,
			Temperature:  0.7,
			Shape:        ShapeSeparatedSystem,
		},
		{
			ID:           "deepseek",
			BaseEndpoint: "https://api.deepseek.com/v1/chat/completions",
			DefaultModel: "deepseek-chat",
			MaxTokens:    4000,
			Temperature:  0.7,
			Shape:        ShapeInlineSystem,
		},
		{
			ID:           "grok",
			BaseEndpoint: "https://api.x.ai/v1/chat/completions",
			DefaultModel: "grok-beta",
			MaxTokens:    4000,
			Temperature:  0.7,
			Shape:        ShapeInlineSystem,
		},
		{
			ID:           "mistral",
			BaseEndpoint: "https://api.mistral.ai/v1/chat/completions",
			DefaultModel: "mistral-medium",
			MaxTokens:    4000,
			Temperature:  0.7,
			Shape:        ShapeInlineSystem,
		},
	}
}
