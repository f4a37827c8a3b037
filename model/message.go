package model

import (
	"time"

	"github.com/google/uuid"
)

// Message roles. The set is closed; anything else is rejected at the boundary.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a chat message in the conversation.
// Messages are immutable once created; the only removal path is the
// rollback performed before a retry.
type Message struct {
	ID         string
	Role       string
	Content    string
	Timestamp  time.Time
	ProviderID string // provider that produced an assistant message, empty otherwise
	IsError    bool   // synthetic assistant record describing a failed dispatch
}

// NewMessage creates a message with a fresh ID and the current timestamp.
func NewMessage(role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// ValidRole reports whether role belongs to the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
