package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pulse/config"
	"pulse/memory"
	"pulse/model"
	"pulse/provider"
)

// ErrBusy is returned when a send is requested while another dispatch is
// already in flight. The in-flight request is unaffected.
var ErrBusy = errors.New("a request is already in flight")

// ValidationError blocks a send before any network traffic happens. It is
// surfaced inline rather than recorded in the conversation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Phase tracks a dispatch attempt through its lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseComposing
	PhaseDispatched
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseComposing:
		return "composing"
	case PhaseDispatched:
		return "dispatched"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dispatcher sends a composed window to a provider. *provider.Dispatcher is
// the real implementation; tests substitute their own.
type Dispatcher interface {
	Dispatch(ctx context.Context, window []model.Message, cfg provider.ProviderConfig, secret string) (provider.Result, error)
}

// Controller drives the send pipeline: validate, append the user message,
// augment from memory, build the window, dispatch, and record the outcome.
// At most one dispatch is in flight per controller.
type Controller struct {
	mu         sync.Mutex
	registry   *provider.Registry
	creds      *config.CredentialStore
	dispatcher Dispatcher
	retrieval  *memory.Client
	session    *SessionState
	notifier   Notifier

	preamble      string
	historyWindow int

	phase        Phase
	lastProvider string
}

// NewController wires the orchestration core together. retrieval may be nil
// when memory is disabled.
func NewController(registry *provider.Registry, creds *config.CredentialStore, dispatcher Dispatcher, retrieval *memory.Client, session *SessionState, notifier Notifier, preamble string, historyWindow int) *Controller {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Controller{
		registry:      registry,
		creds:         creds,
		dispatcher:    dispatcher,
		retrieval:     retrieval,
		session:       session,
		notifier:      notifier,
		preamble:      preamble,
		historyWindow: historyWindow,
	}
}

// Phase returns the current lifecycle phase. After an attempt completes the
// terminal phase remains observable until the next send begins.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Send runs one conversation turn. Validation failures return before any
// state changes or network traffic; a send during an in-flight dispatch
// returns ErrBusy and is otherwise a no-op. Provider and network failures
// are recorded in the conversation as error messages and returned.
func (c *Controller) Send(ctx context.Context, text, providerID string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &ValidationError{Reason: "prompt cannot be empty"}
	}

	cfg, secret, err := c.begin(providerID)
	if err != nil {
		return err
	}

	c.session.Append(model.NewMessage(model.RoleUser, text))
	return c.dispatchTurn(ctx, text, cfg, secret)
}

// RetryLast rolls the conversation back to the most recent user message and
// re-sends it to the same provider. The user message is not duplicated.
func (c *Controller) RetryLast(ctx context.Context) error {
	lastUser, ok := c.lastUserMessage()
	if !ok {
		return &ValidationError{Reason: "nothing to retry"}
	}

	c.mu.Lock()
	providerID := c.lastProvider
	c.mu.Unlock()
	if providerID == "" {
		// No attempt this process (resumed session): reuse the provider that
		// produced the last assistant record.
		for _, m := range c.session.Messages() {
			if m.Role == model.RoleAssistant && m.ProviderID != "" {
				providerID = m.ProviderID
			}
		}
	}
	if providerID == "" {
		return &ValidationError{Reason: "nothing to retry"}
	}

	cfg, secret, err := c.begin(providerID)
	if err != nil {
		return err
	}

	// Drop everything after the user message being retried, including any
	// error record from the failed attempt.
	cutoff := lastUser.ID
	seen := false
	c.session.Rollback(func(m model.Message) bool {
		if m.ID == cutoff {
			seen = true
			return false
		}
		return seen
	})

	return c.dispatchTurn(ctx, lastUser.Content, cfg, secret)
}

// begin performs the pre-flight checks and claims the single dispatch slot.
// On success the caller owns the slot and must finish the attempt via
// dispatchTurn.
func (c *Controller) begin(providerID string) (provider.ProviderConfig, string, error) {
	c.mu.Lock()
	if c.phase == PhaseComposing || c.phase == PhaseDispatched {
		c.mu.Unlock()
		return provider.ProviderConfig{}, "", ErrBusy
	}
	c.phase = PhaseComposing
	c.mu.Unlock()

	cfg, err := c.registry.Get(providerID)
	if err != nil {
		c.setPhase(PhaseIdle)
		return provider.ProviderConfig{}, "", err
	}

	secret := c.creds.Get(providerID)
	if secret == "" {
		c.setPhase(PhaseIdle)
		return provider.ProviderConfig{}, "", &ValidationError{
			Reason: fmt.Sprintf("no API key configured for %s", providerID),
		}
	}

	return cfg, secret, nil
}

// dispatchTurn completes an attempt whose user message is already the last
// user message in the log.
func (c *Controller) dispatchTurn(ctx context.Context, text string, cfg provider.ProviderConfig, secret string) error {
	c.mu.Lock()
	c.lastProvider = cfg.ID
	c.mu.Unlock()

	// Best effort: retrieval failures leave snippets nil and the turn
	// proceeds with the unaugmented prompt.
	var snippets []model.MemorySnippet
	if c.retrieval != nil {
		snippets = c.retrieval.Augment(ctx, text, "")
	}

	history := c.session.Messages()
	if n := len(history); n > 0 && history[n-1].Role == model.RoleUser {
		history = history[:n-1]
	}
	window := BuildWindow(history, c.preamble, text, snippets, c.historyWindow)

	c.setPhase(PhaseDispatched)
	result, err := c.dispatcher.Dispatch(ctx, window, cfg, secret)
	if err != nil {
		c.setPhase(PhaseFailed)
		c.recordFailure(cfg.ID, err)
		return err
	}

	c.setPhase(PhaseSucceeded)
	reply := model.NewMessage(model.RoleAssistant, result.Content)
	reply.ProviderID = cfg.ID
	c.session.Append(reply)

	if config.Debug && config.DebugLog != nil {
		config.DebugLog.Printf("[Controller] %s replied (%d tokens)", cfg.ID, result.TokensUsed)
	}
	return nil
}

// recordFailure appends an error record so the failure is visible in the
// conversation itself, carrying the provider's message verbatim.
func (c *Controller) recordFailure(providerID string, err error) {
	record := model.NewMessage(model.RoleAssistant,
		fmt.Sprintf("Sorry, I encountered an error: %s", err.Error()))
	record.ProviderID = providerID
	record.IsError = true
	c.session.Append(record)

	c.notifier.Notify(fmt.Sprintf("Request to %s failed", providerID), LevelError)
	if config.Debug && config.DebugLog != nil {
		config.DebugLog.Printf("[Controller] dispatch to %s failed: %v", providerID, err)
	}
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// lastUserMessage returns the most recent user message in the log.
func (c *Controller) lastUserMessage() (model.Message, bool) {
	msgs := c.session.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}
