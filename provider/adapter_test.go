package provider

import (
	"encoding/json"
	"testing"

	"pulse/model"
)

func testWindow() []model.Message {
	return []model.Message{
		{Role: model.RoleSystem, Content: "You are helpful."},
		{Role: model.RoleUser, Content: "Hi"},
		{Role: model.RoleAssistant, Content: "Hello!"},
		{Role: model.RoleUser, Content: "What is 2+2?"},
	}
}

func TestAdapterFor(t *testing.T) {
	if _, err := adapterFor(ShapeInlineSystem); err != nil {
		t.Errorf("adapterFor(inline_system) error: %v", err)
	}
	if _, err := adapterFor(ShapeSeparatedSystem); err != nil {
		t.Errorf("adapterFor(separated_system) error: %v", err)
	}
	if _, err := adapterFor("csv"); err == nil {
		t.Error("adapterFor(csv) expected error, got none")
	}
}

func TestInlineSystemBuild(t *testing.T) {
	cfg := ProviderConfig{
		ID:           "openai",
		DefaultModel: "gpt-3.5-turbo",
		MaxTokens:    4000,
		Temperature:  0.7,
		Shape:        ShapeInlineSystem,
	}

	req, err := inlineSystemAdapter{}.Build(testWindow(), cfg, "sk-test")
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if got := req.Headers.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer sk-test")
	}
	if got := req.Headers.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	var body inlineRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if body.Model != "gpt-3.5-turbo" {
		t.Errorf("model = %q", body.Model)
	}
	if body.MaxTokens != 4000 || body.Temperature != 0.7 {
		t.Errorf("max_tokens = %d, temperature = %v", body.MaxTokens, body.Temperature)
	}
	// System message stays inline, order preserved, user last.
	if len(body.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(body.Messages))
	}
	if body.Messages[0].Role != model.RoleSystem {
		t.Errorf("first message role = %q, want system", body.Messages[0].Role)
	}
	if last := body.Messages[3]; last.Role != model.RoleUser || last.Content != "What is 2+2?" {
		t.Errorf("last message = %+v, want the user prompt", last)
	}
}

func TestInlineSystemParse(t *testing.T) {
	raw := `{
		"model": "gpt-3.5-turbo-0125",
		"choices": [{"message": {"role": "assistant", "content": "4"}}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 1, "total_tokens": 21}
	}`

	result, err := inlineSystemAdapter{}.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if result.Content != "4" {
		t.Errorf("Content = %q, want %q", result.Content, "4")
	}
	if result.TokensUsed != 21 {
		t.Errorf("TokensUsed = %d, want 21", result.TokensUsed)
	}
	if result.Model != "gpt-3.5-turbo-0125" {
		t.Errorf("Model = %q", result.Model)
	}
}

func TestInlineSystemParseNoChoices(t *testing.T) {
	if _, err := (inlineSystemAdapter{}).Parse([]byte(`{"choices": []}`)); err == nil {
		t.Error("expected error for empty choices")
	}
	if _, err := (inlineSystemAdapter{}).Parse([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestSeparatedSystemBuild(t *testing.T) {
	cfg := ProviderConfig{
		ID:           "anthropic",
		DefaultModel: "claude-3-sonnet-20240229",
		MaxTokens:    4000,
		Shape:        ShapeSeparatedSystem,
	}

	req, err := separatedSystemAdapter{}.Build(testWindow(), cfg, "sk-ant-test")
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if got := req.Headers.Get("x-api-key"); got != "sk-ant-test" {
		t.Errorf("x-api-key = %q", got)
	}
	if got := req.Headers.Get("anthropic-version"); got != "2023-06-01" {
		t.Errorf("anthropic-version = %q", got)
	}
	if got := req.Headers.Get("Authorization"); got != "" {
		t.Errorf("unexpected Authorization header %q", got)
	}

	var body separatedRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if body.System != "You are helpful." {
		t.Errorf("system = %q, want the preamble lifted out", body.System)
	}
	// The messages array must not contain the system role.
	if len(body.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(body.Messages))
	}
	for _, m := range body.Messages {
		if m.Role == model.RoleSystem {
			t.Errorf("system message leaked into messages array: %+v", m)
		}
	}
}

func TestSeparatedSystemBuildNoSystem(t *testing.T) {
	window := []model.Message{{Role: model.RoleUser, Content: "Hi"}}
	req, err := separatedSystemAdapter{}.Build(window, ProviderConfig{DefaultModel: "m"}, "k")
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(req.Body, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["system"]; ok {
		t.Error("system field present for a window with no system message")
	}
}

func TestSeparatedSystemParse(t *testing.T) {
	raw := `{
		"model": "claude-3-sonnet-20240229",
		"content": [{"type": "text", "text": "The answer is "}, {"type": "text", "text": "4."}],
		"usage": {"input_tokens": 30, "output_tokens": 7}
	}`

	result, err := separatedSystemAdapter{}.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if result.Content != "The answer is 4." {
		t.Errorf("Content = %q, blocks not concatenated", result.Content)
	}
	if result.TokensUsed != 7 {
		t.Errorf("TokensUsed = %d, want 7", result.TokensUsed)
	}
}

func TestSeparatedSystemParseNoContent(t *testing.T) {
	if _, err := (separatedSystemAdapter{}).Parse([]byte(`{"content": []}`)); err == nil {
		t.Error("expected error for empty content blocks")
	}
}
