// Package session provides the conversation store the loop subsystem
// collaborates with: per-session message history plus the append hook the
// recovery layer uses to inject corrective notices.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Message represents a conversation message
type Message struct {
	Role      string    `json:"role"` // "user", "assistant", "system", "tool"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session manages a conversation session
type Session struct {
	ID string

	mu       sync.RWMutex
	messages []*Message

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession creates a new session
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		messages:  make([]*Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GenerateID creates a random session ID (hex, 12 chars).
func GenerateID() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}

// AddMessage adds a message to the session
func (s *Session) AddMessage(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.messages = append(s.messages, msg)
	s.UpdatedAt = time.Now()
}

// Messages returns a copy of all messages.
func (s *Session) Messages() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := make([]*Message, len(s.messages))
	copy(messages, s.messages)
	return messages
}

// MessageCount returns the number of messages in the session.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LastMessage returns the most recent message, or nil for an empty session.
func (s *Session) LastMessage() *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1]
}
