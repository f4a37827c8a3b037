package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"pulse/model"
)

// Message is the persisted form of a chat message.
type Message struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	ProviderID string    `json:"provider_id,omitempty"`
	IsError    bool      `json:"is_error,omitempty"`
}

// Session represents a stored conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// SessionMetadata is a lightweight version of Session for listing
type SessionMetadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// SessionStorage persists sessions as one JSON file each under
// <data_dir>/sessions. It is the durable side of the conversation; the
// in-memory log lives in the chat package.
type SessionStorage struct {
	sessionsDir string
}

// NewSessionStorage creates a new session storage
func NewSessionStorage(dataDir string) (*SessionStorage, error) {
	sessionsDir := filepath.Join(dataDir, "sessions")

	// 0700 - user-only access
	if err := os.MkdirAll(sessionsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &SessionStorage{
		sessionsDir: sessionsDir,
	}, nil
}

// Create makes a new empty session and writes it to disk.
func (s *SessionStorage) Create() (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:        uuid.New().String(),
		Title:     fmt.Sprintf("Session %s", now.Format("Jan 2, 3:04 PM")),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.write(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Save persists a session's messages, stamping UpdatedAt.
func (s *SessionStorage) Save(sessionID string, messages []model.Message) error {
	session, err := s.Load(sessionID)
	if err != nil {
		// Session file may not exist yet (first save after Create on another
		// host, or a deleted file); rebuild the envelope.
		session = &Session{ID: sessionID, CreatedAt: time.Now()}
	}

	session.Messages = toStoredMessages(messages)
	session.UpdatedAt = time.Now()
	if session.Title == "" {
		session.Title = GenerateSessionTitle(firstUserContent(messages))
	}
	return s.write(session)
}

func (s *SessionStorage) write(session *Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := s.sessionPath(session.ID)
	// 0600 - session files contain conversation history
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}

// Load loads a session from disk
func (s *SessionStorage) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// List returns metadata for all sessions, sorted by update time (newest first)
func (s *SessionStorage) List() ([]SessionMetadata, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []SessionMetadata

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.sessionsDir, entry.Name()))
		if err != nil {
			continue // Skip corrupted files
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue // Skip corrupted files
		}

		sessions = append(sessions, SessionMetadata{
			ID:           session.ID,
			Title:        session.Title,
			CreatedAt:    session.CreatedAt,
			UpdatedAt:    session.UpdatedAt,
			MessageCount: len(session.Messages),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	return sessions, nil
}

// Delete deletes a session from disk
func (s *SessionStorage) Delete(id string) error {
	if err := os.Remove(s.sessionPath(id)); err != nil {
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	return nil
}

// Rename updates the title of a stored session.
func (s *SessionStorage) Rename(id string, newTitle string) error {
	session, err := s.Load(id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	session.Title = newTitle
	session.UpdatedAt = time.Now()

	if err := s.write(session); err != nil {
		return fmt.Errorf("failed to save renamed session: %w", err)
	}

	return nil
}

// SaveCurrentSessionID saves the ID of the current session
func (s *SessionStorage) SaveCurrentSessionID(id string) error {
	path := filepath.Join(filepath.Dir(s.sessionsDir), "current_session.id")
	return os.WriteFile(path, []byte(id), 0600)
}

// LoadCurrentSessionID loads the ID of the last active session
func (s *SessionStorage) LoadCurrentSessionID() (string, error) {
	path := filepath.Join(filepath.Dir(s.sessionsDir), "current_session.id")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *SessionStorage) sessionPath(id string) string {
	return filepath.Join(s.sessionsDir, id+".json")
}

// GenerateSessionTitle derives a session title from the first user message
func GenerateSessionTitle(firstMessage string) string {
	if firstMessage == "" {
		return fmt.Sprintf("Session %s", time.Now().Format("Jan 2, 3:04 PM"))
	}

	title := firstMessage
	if len(title) > 30 {
		title = title[:30] + "..."
	}

	title = strings.ReplaceAll(title, "\n", " ")
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.TrimSpace(title)

	if title == "" {
		return fmt.Sprintf("Session %s", time.Now().Format("Jan 2, 3:04 PM"))
	}

	return title
}

// ToModelMessages converts stored messages into the in-memory form.
func ToModelMessages(stored []Message) []model.Message {
	messages := make([]model.Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, model.Message{
			ID:         m.ID,
			Role:       m.Role,
			Content:    m.Content,
			Timestamp:  m.Timestamp,
			ProviderID: m.ProviderID,
			IsError:    m.IsError,
		})
	}
	return messages
}

func toStoredMessages(messages []model.Message) []Message {
	stored := make([]Message, 0, len(messages))
	for _, m := range messages {
		stored = append(stored, Message{
			ID:         m.ID,
			Role:       m.Role,
			Content:    m.Content,
			Timestamp:  m.Timestamp,
			ProviderID: m.ProviderID,
			IsError:    m.IsError,
		})
	}
	return stored
}

func firstUserContent(messages []model.Message) string {
	for _, m := range messages {
		if m.Role == model.RoleUser {
			return m.Content
		}
	}
	return ""
}
