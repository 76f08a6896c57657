package datatypes

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation is the ordered transcript of one logical chat. It is owned by
// the conversation store for the life of the process and shared by every
// connection that joins with the same session id, so all mutation is
// serialized on an internal mutex: concurrent appends from sibling
// connections cannot lose or interleave messages.
type Conversation struct {
	ID        string
	SessionID string
	CreatedAt time.Time

	mu            sync.Mutex
	messages      []Message
	lastMessageAt time.Time
}

// NewConversation creates an empty conversation owned by the given session.
func NewConversation(sessionID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		CreatedAt:     now,
		lastMessageAt: now,
	}
}

// IsNew reports whether the conversation has no history yet. The turn
// orchestrator uses this to seed the system instruction exactly once.
func (c *Conversation) IsNew() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages) == 0
}

// AddMessage appends one message and advances the last-message time to the
// appended message's timestamp. STATUS messages are protocol notifications,
// not history; they are ignored here so the invariant holds no matter what
// the caller does.
func (c *Conversation) AddMessage(m Message) {
	if m.Type == MessageStatus {
		slog.Debug("dropping STATUS message from history append", "conversationId", c.ID)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	c.lastMessageAt = m.SentAt
}

// AddAllMessages appends messages in order. An empty list is a no-op.
func (c *Conversation) AddAllMessages(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		if m.Type == MessageStatus {
			slog.Debug("dropping STATUS message from history append", "conversationId", c.ID)
			continue
		}
		c.messages = append(c.messages, m)
		c.lastMessageAt = m.SentAt
	}
}

// ToPromptMessages projects the history into the ordered completion request
// format.
func (c *Conversation) ToPromptMessages() []PromptMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	prompt := make([]PromptMessage, 0, len(c.messages))
	for _, m := range c.messages {
		if pm, ok := m.ToPromptMessage(); ok {
			prompt = append(prompt, pm)
		}
	}
	return prompt
}

// History returns a snapshot copy of the full transcript.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Replayable returns the snapshot replayed to a joining connection: USER and
// ASSISTANT turns only. The SYSTEM seed is an internal prompt and STATUS
// never enters history in the first place.
func (c *Conversation) Replayable() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		if m.Type == MessageUser || m.Type == MessageAssistant {
			out = append(out, m)
		}
	}
	return out
}

// LastMessageAt returns the timestamp of the most recently appended message,
// or the creation time for an empty conversation.
func (c *Conversation) LastMessageAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessageAt
}

// Len returns the number of messages in history.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
