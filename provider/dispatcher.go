package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pulse/config"
	"pulse/model"
)

const dispatchTimeout = 60 * time.Second

// Dispatcher performs exactly one network call per attempt: it selects the
// adapter for the provider's shape, sends the translated request and returns
// either a normalized Result or a classified failure. Retry policy lives with
// the caller; the dispatcher never retries.
type Dispatcher struct {
	client *http.Client
}

// NewDispatcher creates a dispatcher with the default HTTP client timeout.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		client: &http.Client{Timeout: dispatchTimeout},
	}
}

// Dispatch sends one conversation window to a provider.
//
// Failure classification:
//   - transport failure (connect, DNS, timeout) → *NetworkError
//   - non-2xx status → *ProviderError carrying the provider's own message
//   - malformed 2xx body → plain error
func (d *Dispatcher) Dispatch(ctx context.Context, window []model.Message, cfg ProviderConfig, secret string) (Result, error) {
	adapter, err := adapterFor(cfg.Shape)
	if err != nil {
		return Result{}, err
	}

	wire, err := adapter.Build(window, cfg, secret)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build %s request: %w", cfg.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseEndpoint, bytes.NewReader(wire.Body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create %s request: %w", cfg.ID, err)
	}
	for key, values := range wire.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	if config.Debug && config.DebugLog != nil {
		config.DebugLog.Printf("[Dispatcher] POST %s (%d messages, shape=%s)", cfg.BaseEndpoint, len(window), cfg.Shape)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, &NetworkError{ProviderID: cfg.ID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &NetworkError{ProviderID: cfg.ID, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &ProviderError{
			ProviderID: cfg.ID,
			Status:     resp.StatusCode,
			Message:    extractErrorMessage(body, resp.StatusCode),
		}
	}

	result, err := adapter.Parse(body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse %s response: %w", cfg.ID, err)
	}
	return result, nil
}

// extractErrorMessage pulls the provider-supplied error text out of a non-2xx
// body. Providers disagree on the envelope, so the common variants are tried
// in turn before falling back to the status text.
func extractErrorMessage(body []byte, status int) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	var flat struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		for _, msg := range []string{flat.Error, flat.Message, flat.Detail} {
			if msg != "" {
				return msg
			}
		}
	}

	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && len(trimmed) <= 300 {
		return trimmed
	}
	return http.StatusText(status)
}
