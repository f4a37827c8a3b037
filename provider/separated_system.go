package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"pulse/model"
)

// anthropicVersion is the API version header the separated-system dialect
// requires on every request.
const anthropicVersion = "2023-06-01"

// separatedSystemAdapter speaks the messages dialect: system text is a
// distinct top-level field excluded from the messages array, and the reply
// is read from a content block array.
type separatedSystemAdapter struct{}

type separatedRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
}

type separatedResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (separatedSystemAdapter) Build(window []model.Message, cfg ProviderConfig, secret string) (*WireRequest, error) {
	var systemParts []string
	messages := make([]wireMessage, 0, len(window))
	for _, msg := range window {
		if msg.Role == model.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		messages = append(messages, wireMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(separatedRequest{
		Model:     cfg.DefaultModel,
		MaxTokens: cfg.MaxTokens,
		System:    strings.Join(systemParts, "\n\n"),
		Messages:  messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("x-api-key", secret)
	headers.Set("anthropic-version", anthropicVersion)

	return &WireRequest{Body: body, Headers: headers}, nil
}

func (separatedSystemAdapter) Parse(body []byte) (Result, error) {
	var resp separatedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(resp.Content) == 0 {
		return Result{}, fmt.Errorf("response contained no content blocks")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		text.WriteString(block.Text)
	}

	return Result{
		Content:    text.String(),
		TokensUsed: resp.Usage.OutputTokens,
		Model:      resp.Model,
	}, nil
}
