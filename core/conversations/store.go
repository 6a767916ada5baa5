// Package conversations persists the messages of finished turns.
package conversations

import (
	"context"
	"sync"

	"github.com/koscakluka/ema-companion/core/llms"
)

// Store keeps an append-only message history per conversation.
type Store interface {
	Append(ctx context.Context, conversationID string, messages ...llms.Message) error
	// Load returns up to limit newest messages, oldest first. A limit of zero
	// or less returns everything.
	Load(ctx context.Context, conversationID string, limit int) ([]llms.Message, error)
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string][]llms.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: map[string][]llms.Message{}}
}

func (s *MemoryStore) Append(_ context.Context, conversationID string, messages ...llms.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range messages {
		s.conversations[conversationID] = append(s.conversations[conversationID], Clone(msg))
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, conversationID string, limit int) ([]llms.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := s.conversations[conversationID]
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	loaded := make([]llms.Message, 0, len(messages))
	for _, msg := range messages {
		loaded = append(loaded, Clone(msg))
	}
	return loaded, nil
}

// Clone copies a message including its tool calls and content parts.
func Clone(msg llms.Message) llms.Message {
	msg.ToolCalls = append([]llms.ToolCall(nil), msg.ToolCalls...)
	msg.Parts = append([]llms.ContentPart(nil), msg.Parts...)
	return msg
}
