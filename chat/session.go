package chat

import (
	"sync"
	"time"

	"pulse/config"
	"pulse/model"
)

// DefaultPersistDebounce is how long the session manager waits after the
// last mutation before writing the log to its store. Rapid bursts of
// mutations collapse into a single save.
const DefaultPersistDebounce = 1000 * time.Millisecond

// Store persists a session's message log. storage.SessionStorage satisfies
// this; tests substitute their own.
type Store interface {
	Save(sessionID string, messages []model.Message) error
}

// SessionState owns the append-only message log for the active session and
// schedules its persistence. All mutations are safe for concurrent use.
type SessionState struct {
	mu       sync.Mutex
	store    Store
	notifier Notifier
	debounce time.Duration

	sessionID string
	messages  []model.Message

	timer   *time.Timer
	pending bool

	// saveMu serializes store writes; each write snapshots the log after
	// acquiring it, so a timer callback that raced a synchronous save can
	// never write an older log over a newer one.
	saveMu sync.Mutex
}

// NewSessionState returns a manager for the given session. A nil store
// disables persistence, a nil notifier discards notifications.
func NewSessionState(store Store, notifier Notifier, sessionID string, messages []model.Message) *SessionState {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	s := &SessionState{
		store:     store,
		notifier:  notifier,
		debounce:  DefaultPersistDebounce,
		sessionID: sessionID,
	}
	s.messages = append(s.messages, messages...)
	return s
}

// SessionID returns the identifier of the active session.
func (s *SessionState) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Messages returns a copy of the current log.
func (s *SessionState) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the log.
func (s *SessionState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Append adds a message to the log and schedules a persist. Timestamps are
// kept monotonically non-decreasing so ordering survives a reload.
func (s *SessionState) Append(msg model.Message) {
	s.mu.Lock()
	if n := len(s.messages); n > 0 && msg.Timestamp.Before(s.messages[n-1].Timestamp) {
		msg.Timestamp = s.messages[n-1].Timestamp
	}
	s.messages = append(s.messages, msg)
	s.schedulePersistLocked()
	s.mu.Unlock()
}

// Rollback removes every message matching the predicate and schedules a
// persist. It reports how many messages were removed.
func (s *SessionState) Rollback(drop func(model.Message) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.messages[:0]
	removed := 0
	for _, msg := range s.messages {
		if drop(msg) {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	s.messages = kept
	if removed > 0 {
		s.schedulePersistLocked()
	}
	return removed
}

// Clear empties the log and persists the empty state immediately, bypassing
// the debounce. A cleared conversation must not be resurrected by a stale
// pending save.
func (s *SessionState) Clear() {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.messages = nil
	s.mu.Unlock()

	s.persist()
}

// Switch flushes any pending save for the current session, then replaces the
// active session and log.
func (s *SessionState) Switch(sessionID string, messages []model.Message) {
	s.Flush()

	s.mu.Lock()
	s.sessionID = sessionID
	s.messages = append([]model.Message(nil), messages...)
	s.mu.Unlock()
}

// Flush writes any pending persist immediately.
func (s *SessionState) Flush() {
	s.mu.Lock()
	wasPending := s.pending
	s.cancelTimerLocked()
	s.mu.Unlock()

	if wasPending {
		s.persist()
	}
}

func (s *SessionState) schedulePersistLocked() {
	if s.store == nil {
		return
	}
	s.pending = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.firePersist)
}

func (s *SessionState) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
}

func (s *SessionState) firePersist() {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.mu.Unlock()

	s.persist()
}

// persist writes the current log. Store failures never interrupt the
// conversation: they are logged and surfaced as a notification.
func (s *SessionState) persist() {
	if s.store == nil {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	sessionID := s.sessionID
	msgs := make([]model.Message, len(s.messages))
	copy(msgs, s.messages)
	s.mu.Unlock()

	if err := s.store.Save(sessionID, msgs); err != nil {
		if config.Debug && config.DebugLog != nil {
			config.DebugLog.Printf("[Session] save failed for %s: %v", sessionID, err)
		}
		s.notifier.Notify("Failed to save conversation: "+err.Error(), LevelWarning)
	}
}
