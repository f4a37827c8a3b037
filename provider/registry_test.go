package provider

import (
	"errors"
	"testing"
)

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name      string
		id        string
		wantModel string
		wantShape RequestShape
		wantErr   bool
	}{
		{name: "openai", id: "openai", wantModel: "gpt-3.5-turbo", wantShape: ShapeInlineSystem},
		{name: "anthropic", id: "anthropic", wantModel: "claude-3-sonnet-20240229", wantShape: ShapeSeparatedSystem},
		{name: "deepseek", id: "deepseek", wantModel: "deepseek-chat", wantShape: ShapeInlineSystem},
		{name: "grok", id: "grok", wantModel: "grok-beta", wantShape: ShapeInlineSystem},
		{name: "mistral", id: "mistral", wantModel: "mistral-medium", wantShape: ShapeInlineSystem},
		{name: "unknown id", id: "gemini", wantErr: true},
		{name: "empty id", id: "", wantErr: true},
		{name: "case sensitive", id: "OpenAI", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := r.Get(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Get(%q) expected error, got none", tt.id)
				}
				if !errors.Is(err, ErrUnknownProvider) {
					t.Errorf("Get(%q) error = %v, want ErrUnknownProvider", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get(%q) unexpected error: %v", tt.id, err)
			}
			if cfg.DefaultModel != tt.wantModel {
				t.Errorf("DefaultModel = %q, want %q", cfg.DefaultModel, tt.wantModel)
			}
			if cfg.Shape != tt.wantShape {
				t.Errorf("Shape = %q, want %q", cfg.Shape, tt.wantShape)
			}
			if cfg.MaxTokens != 4000 {
				t.Errorf("MaxTokens = %d, want 4000", cfg.MaxTokens)
			}
		})
	}
}

func TestRegistryUnknownProviderMessage(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("gemini")
	if err == nil {
		t.Fatal("expected error")
	}
	want := "unsupported provider: gemini"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	list := r.List()
	if len(list) != 5 {
		t.Fatalf("List() returned %d providers, want 5", len(list))
	}
	// Catalogue order is stable.
	wantOrder := []string{"openai", "anthropic", "deepseek", "grok", "mistral"}
	for i, id := range wantOrder {
		if list[i].ID != id {
			t.Errorf("List()[%d].ID = %q, want %q", i, list[i].ID, id)
		}
	}
}

func TestRegistryApplyOverride(t *testing.T) {
	r := NewRegistry()

	if err := r.ApplyOverride("openai", "http://localhost:8080/v1/chat", "gpt-4o"); err != nil {
		t.Fatalf("ApplyOverride() unexpected error: %v", err)
	}
	cfg, err := r.Get("openai")
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if cfg.BaseEndpoint != "http://localhost:8080/v1/chat" {
		t.Errorf("BaseEndpoint = %q, override not applied", cfg.BaseEndpoint)
	}
	if cfg.DefaultModel != "gpt-4o" {
		t.Errorf("DefaultModel = %q, override not applied", cfg.DefaultModel)
	}
	// Shape is not overridable.
	if cfg.Shape != ShapeInlineSystem {
		t.Errorf("Shape = %q, want %q", cfg.Shape, ShapeInlineSystem)
	}

	// Empty values keep existing configuration.
	if err := r.ApplyOverride("openai", "", ""); err != nil {
		t.Fatalf("ApplyOverride() unexpected error: %v", err)
	}
	cfg, _ = r.Get("openai")
	if cfg.DefaultModel != "gpt-4o" {
		t.Errorf("empty override changed DefaultModel to %q", cfg.DefaultModel)
	}

	if err := r.ApplyOverride("nope", "http://x", ""); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("ApplyOverride(unknown) error = %v, want ErrUnknownProvider", err)
	}
}

func TestRegistryHas(t *testing.T) {
	r := NewRegistry()
	if !r.Has("anthropic") {
		t.Error("Has(anthropic) = false, want true")
	}
	if r.Has("gemini") {
		t.Error("Has(gemini) = true, want false")
	}
}
