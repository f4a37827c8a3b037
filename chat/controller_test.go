package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pulse/config"
	"pulse/memory"
	"pulse/model"
	"pulse/provider"
)

// mockDispatcher implements Dispatcher and records every dispatched window.
type mockDispatcher struct {
	mu      sync.Mutex
	windows [][]model.Message
	secrets []string
	result  provider.Result
	err     error
	block   chan struct{} // when set, Dispatch waits until closed
}

func (m *mockDispatcher) Dispatch(ctx context.Context, window []model.Message, cfg provider.ProviderConfig, secret string) (provider.Result, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	copied := make([]model.Message, len(window))
	copy(copied, window)
	m.windows = append(m.windows, copied)
	m.secrets = append(m.secrets, secret)
	m.mu.Unlock()
	return m.result, m.err
}

func (m *mockDispatcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *mockDispatcher) lastWindow() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.windows) == 0 {
		return nil
	}
	return m.windows[len(m.windows)-1]
}

// errorSearcher always fails, standing in for an unreachable memory service.
type errorSearcher struct{}

func (errorSearcher) Search(ctx context.Context, query string, topK int, threshold float64, scope string) ([]model.MemorySnippet, error) {
	return nil, errors.New("memory service unreachable")
}

// fixedSearcher returns the same snippets for every query.
type fixedSearcher struct {
	snippets []model.MemorySnippet
}

func (f fixedSearcher) Search(ctx context.Context, query string, topK int, threshold float64, scope string) ([]model.MemorySnippet, error) {
	return f.snippets, nil
}

func newTestController(t *testing.T, dispatcher Dispatcher, retrieval *memory.Client) (*Controller, *SessionState) {
	t.Helper()
	creds := config.NewCredentialStore(config.SecurityPlainText, "")
	if err := creds.Set("openai", "sk-test"); err != nil {
		t.Fatal(err)
	}
	session := NewSessionState(nil, nil, "session-1", nil)
	ctrl := NewController(provider.NewRegistry(), creds, dispatcher, retrieval, session, nil, "You are helpful.", 10)
	return ctrl, session
}

func TestSendAppendsUserAndAssistant(t *testing.T) {
	dispatcher := &mockDispatcher{result: provider.Result{Content: "Hello!", TokensUsed: 5}}
	ctrl, session := newTestController(t, dispatcher, nil)

	if err := ctrl.Send(context.Background(), "Hi", "openai"); err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	msgs := session.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log has %d messages, want user + assistant", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "Hi" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "Hello!" {
		t.Errorf("second message = %+v", msgs[1])
	}
	if msgs[1].ProviderID != "openai" {
		t.Errorf("assistant ProviderID = %q, want openai", msgs[1].ProviderID)
	}
}

func TestSendWindowAcrossTurns(t *testing.T) {
	dispatcher := &mockDispatcher{result: provider.Result{Content: "Hello!"}}
	ctrl, _ := newTestController(t, dispatcher, nil)

	if err := ctrl.Send(context.Background(), "Hi", "openai"); err != nil {
		t.Fatal(err)
	}
	dispatcher.result = provider.Result{Content: "4"}
	if err := ctrl.Send(context.Background(), "What is 2+2?", "openai"); err != nil {
		t.Fatal(err)
	}

	window := dispatcher.lastWindow()
	wantRoles := []string{model.RoleSystem, model.RoleUser, model.RoleAssistant, model.RoleUser}
	if len(window) != len(wantRoles) {
		t.Fatalf("second window has %d messages, want %d", len(window), len(wantRoles))
	}
	for i, role := range wantRoles {
		if window[i].Role != role {
			t.Errorf("window[%d].Role = %q, want %q", i, window[i].Role, role)
		}
	}
	if window[1].Content != "Hi" || window[2].Content != "Hello!" {
		t.Errorf("prior turn missing from window: %+v", window)
	}
	if window[3].Content != "What is 2+2?" {
		t.Errorf("new prompt not last: %q", window[3].Content)
	}
}

func TestSendValidation(t *testing.T) {
	dispatcher := &mockDispatcher{}
	ctrl, session := newTestController(t, dispatcher, nil)

	tests := []struct {
		name       string
		text       string
		providerID string
		wantErr    func(error) bool
	}{
		{
			name: "empty prompt", text: "", providerID: "openai",
			wantErr: func(err error) bool { var v *ValidationError; return errors.As(err, &v) },
		},
		{
			name: "whitespace prompt", text: "   \n ", providerID: "openai",
			wantErr: func(err error) bool { var v *ValidationError; return errors.As(err, &v) },
		},
		{
			name: "unknown provider", text: "hi", providerID: "gemini",
			wantErr: func(err error) bool { return errors.Is(err, provider.ErrUnknownProvider) },
		},
		{
			name: "missing credential", text: "hi", providerID: "anthropic",
			wantErr: func(err error) bool { var v *ValidationError; return errors.As(err, &v) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ctrl.Send(context.Background(), tt.text, tt.providerID)
			if err == nil || !tt.wantErr(err) {
				t.Errorf("Send() error = %v, classification wrong", err)
			}
		})
	}

	// None of the rejected sends touched the log or the network.
	if session.Len() != 0 {
		t.Errorf("log has %d messages after rejected sends, want 0", session.Len())
	}
	if dispatcher.callCount() != 0 {
		t.Errorf("dispatcher called %d times, want 0", dispatcher.callCount())
	}
	if ctrl.Phase() != PhaseIdle {
		t.Errorf("Phase = %v after rejected sends, want idle", ctrl.Phase())
	}
}

func TestSendBusy(t *testing.T) {
	block := make(chan struct{})
	dispatcher := &mockDispatcher{result: provider.Result{Content: "ok"}, block: block}
	ctrl, session := newTestController(t, dispatcher, nil)

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Send(context.Background(), "first", "openai")
	}()

	// Wait for the first send to reach the dispatcher.
	for ctrl.Phase() != PhaseDispatched {
		time.Sleep(time.Millisecond)
	}

	if err := ctrl.Send(context.Background(), "second", "openai"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send() error = %v, want ErrBusy", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first Send() failed: %v", err)
	}

	// The rejected send left no trace.
	for _, m := range session.Messages() {
		if m.Content == "second" {
			t.Error("rejected concurrent send appended its message")
		}
	}
	if dispatcher.callCount() != 1 {
		t.Errorf("dispatcher called %d times, want 1", dispatcher.callCount())
	}
}

func TestSendFailureRecordsError(t *testing.T) {
	provErr := &provider.ProviderError{ProviderID: "openai", Status: 429, Message: "Rate limit reached for gpt-3.5-turbo"}
	dispatcher := &mockDispatcher{err: provErr}
	ctrl, session := newTestController(t, dispatcher, nil)

	err := ctrl.Send(context.Background(), "hi", "openai")
	var gotProvErr *provider.ProviderError
	if !errors.As(err, &gotProvErr) {
		t.Fatalf("Send() error = %v, want the provider error surfaced", err)
	}

	msgs := session.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log has %d messages, want user + error record", len(msgs))
	}
	record := msgs[1]
	if !record.IsError {
		t.Error("failure record not flagged IsError")
	}
	if record.Role != model.RoleAssistant {
		t.Errorf("failure record role = %q, want assistant", record.Role)
	}
	if !strings.Contains(record.Content, "Sorry, I encountered an error") {
		t.Errorf("record content = %q, missing the human-readable prefix", record.Content)
	}
	// The provider's own message is carried verbatim.
	if !strings.Contains(record.Content, "Rate limit reached for gpt-3.5-turbo") {
		t.Errorf("record content = %q, provider message not verbatim", record.Content)
	}
	if ctrl.Phase() != PhaseFailed {
		t.Errorf("Phase = %v after failure, want failed", ctrl.Phase())
	}
}

func TestRetryLast(t *testing.T) {
	dispatcher := &mockDispatcher{err: &provider.NetworkError{ProviderID: "openai", Err: errors.New("connection reset")}}
	ctrl, session := newTestController(t, dispatcher, nil)

	if err := ctrl.Send(context.Background(), "important question", "openai"); err == nil {
		t.Fatal("expected the first send to fail")
	}

	// The failure heals on retry.
	dispatcher.mu.Lock()
	dispatcher.err = nil
	dispatcher.result = provider.Result{Content: "recovered answer"}
	dispatcher.mu.Unlock()

	if err := ctrl.RetryLast(context.Background()); err != nil {
		t.Fatalf("RetryLast() unexpected error: %v", err)
	}

	msgs := session.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log has %d messages after retry, want user + assistant", len(msgs))
	}
	if msgs[0].Content != "important question" {
		t.Errorf("user message = %q", msgs[0].Content)
	}
	if msgs[1].Content != "recovered answer" || msgs[1].IsError {
		t.Errorf("retry result = %+v, error record not replaced", msgs[1])
	}

	// The user message appears exactly once in the retried window.
	users := 0
	for _, m := range dispatcher.lastWindow() {
		if m.Role == model.RoleUser {
			users++
		}
	}
	if users != 1 {
		t.Errorf("retried window has %d user messages, want 1", users)
	}
	if dispatcher.callCount() != 2 {
		t.Errorf("dispatcher called %d times, want 2 (original + retry)", dispatcher.callCount())
	}
}

func TestRetryLastNothingToRetry(t *testing.T) {
	ctrl, _ := newTestController(t, &mockDispatcher{}, nil)
	err := ctrl.RetryLast(context.Background())
	var v *ValidationError
	if !errors.As(err, &v) {
		t.Errorf("RetryLast() on empty log error = %v, want ValidationError", err)
	}
}

func TestSendAugmentsPrompt(t *testing.T) {
	retrieval := memory.NewClient(fixedSearcher{snippets: []model.MemorySnippet{
		{Text: "the user prefers concise answers", Similarity: 0.9},
	}}, memory.Options{})
	dispatcher := &mockDispatcher{result: provider.Result{Content: "ok"}}
	ctrl, session := newTestController(t, dispatcher, retrieval)

	if err := ctrl.Send(context.Background(), "summarize this file", "openai"); err != nil {
		t.Fatal(err)
	}

	window := dispatcher.lastWindow()
	last := window[len(window)-1]
	if !strings.Contains(last.Content, "the user prefers concise answers") {
		t.Errorf("snippet missing from dispatched prompt: %q", last.Content)
	}
	// Only the wire copy is augmented; the stored log keeps the raw prompt.
	if got := session.Messages()[0].Content; got != "summarize this file" {
		t.Errorf("stored user message = %q, augmentation leaked into the log", got)
	}
}

func TestSendProceedsWhenAugmentationFails(t *testing.T) {
	retrieval := memory.NewClient(errorSearcher{}, memory.Options{})
	dispatcher := &mockDispatcher{result: provider.Result{Content: "ok"}}
	ctrl, _ := newTestController(t, dispatcher, retrieval)

	if err := ctrl.Send(context.Background(), "what is 2+2?", "openai"); err != nil {
		t.Fatalf("Send() failed because augmentation failed: %v", err)
	}

	window := dispatcher.lastWindow()
	last := window[len(window)-1]
	if last.Content != "what is 2+2?" {
		t.Errorf("prompt = %q, want the unaugmented prompt", last.Content)
	}
}
