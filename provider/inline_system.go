package provider

import (
	"encoding/json"
	"fmt"
	"net/http"

	"pulse/model"
)

// inlineSystemAdapter speaks the chat-completions dialect: the system message
// is an ordinary entry in the messages array, and the reply is read from the
// first choice's message content.
type inlineSystemAdapter struct{}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type inlineRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type inlineResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (inlineSystemAdapter) Build(window []model.Message, cfg ProviderConfig, secret string) (*WireRequest, error) {
	messages := make([]wireMessage, 0, len(window))
	for _, msg := range window {
		messages = append(messages, wireMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(inlineRequest{
		Model:       cfg.DefaultModel,
		Messages:    messages,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Authorization", "Bearer "+secret)

	return &WireRequest{Body: body, Headers: headers}, nil
}

func (inlineSystemAdapter) Parse(body []byte) (Result, error) {
	var resp inlineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("response contained no choices")
	}

	return Result{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		Model:      resp.Model,
	}, nil
}
