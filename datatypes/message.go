// Package datatypes defines the wire and history types of the conversation
// protocol: the tagged Message variant, the Conversation aggregate, and the
// prompt projection handed to the completion collaborator.
package datatypes

import (
	"fmt"
	"time"
)

// MessageType tags a Message. STATUS messages are protocol-only
// notifications and never enter conversation history.
type MessageType string

const (
	MessageSystem    MessageType = "SYSTEM"
	MessageUser      MessageType = "USER"
	MessageAssistant MessageType = "ASSISTANT"
	MessageStatus    MessageType = "STATUS"
)

// Status names the protocol notification carried by a STATUS message.
type Status string

const (
	StatusConnected  Status = "CONNECTED"
	StatusEmbedding  Status = "EMBEDDING"
	StatusSearching  Status = "SEARCHING"
	StatusProcessing Status = "PROCESSING"
	StatusTerminated Status = "TERMINATED"
)

// Message is one protocol message. The combination of fields a message may
// carry depends on its type, so construct messages through the New*Message
// functions rather than struct literals: retrieval context only exists on
// USER messages, sources only on ASSISTANT messages, a status only on STATUS
// messages.
//
// Messages are immutable once appended to a Conversation.
type Message struct {
	Type      MessageType `json:"type"`
	SentAt    time.Time   `json:"sentAt"`
	Text      string      `json:"text"`
	Status    Status      `json:"status,omitempty"`
	Sources   []string    `json:"sources,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`

	// context is the retrieval grounding attached to USER messages. It is
	// unexported so it can never be serialized outward.
	context string
}

// NewSystemMessage builds the system instruction seeded once per
// conversation.
func NewSystemMessage(text string) Message {
	return Message{Type: MessageSystem, SentAt: time.Now(), Text: text}
}

// NewUserMessage builds a user turn with its retrieval context attached.
// Context may be empty when retrieval produced nothing.
func NewUserMessage(text, context string) Message {
	return Message{Type: MessageUser, SentAt: time.Now(), Text: text, context: context}
}

// NewAssistantMessage builds an assistant reply carrying the turn's
// citations.
func NewAssistantMessage(text string, sources []string) Message {
	return Message{Type: MessageAssistant, SentAt: time.Now(), Text: text, Sources: sources}
}

// NewStatusMessage builds a transient protocol notification. Status messages
// are emitted to the client but never appended to history.
func NewStatusMessage(status Status, text string) Message {
	return Message{Type: MessageStatus, SentAt: time.Now(), Status: status, Text: text}
}

// NewConnectedMessage acknowledges a websocket join, echoing the resolved
// session id (empty when no session could be resolved).
func NewConnectedMessage(sessionID string) Message {
	return Message{Type: MessageStatus, SentAt: time.Now(), Status: StatusConnected, SessionID: sessionID}
}

// Context returns the retrieval grounding of a USER message, empty for
// every other type.
func (m Message) Context() string {
	return m.context
}

// PromptMessage is one entry of the ordered prompt sent to the completion
// collaborator.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion roles understood by the collaborator.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// userPromptTemplate renders a user turn that carries retrieval context.
const userPromptTemplate = "Context: %s\n---\nQuestion: %s\nAnswer:"

// ToPromptMessage projects a history message into the completion request
// format. STATUS messages have no projection; ok is false for them.
func (m Message) ToPromptMessage() (PromptMessage, bool) {
	switch m.Type {
	case MessageSystem:
		return PromptMessage{Role: RoleSystem, Content: m.Text}, true
	case MessageAssistant:
		return PromptMessage{Role: RoleAssistant, Content: m.Text}, true
	case MessageUser:
		if m.context != "" {
			return PromptMessage{
				Role:    RoleUser,
				Content: fmt.Sprintf(userPromptTemplate, m.context, m.Text),
			}, true
		}
		return PromptMessage{Role: RoleUser, Content: m.Text}, true
	default:
		return PromptMessage{}, false
	}
}

// UserFrame is the decoded shape of one inbound websocket frame.
type UserFrame struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}
