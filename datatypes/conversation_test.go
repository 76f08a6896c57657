package datatypes

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestConversation_IsNew(t *testing.T) {
	conv := NewConversation("sess-1")
	if !conv.IsNew() {
		t.Error("fresh conversation should be new")
	}

	conv.AddMessage(NewSystemMessage("seed"))
	if conv.IsNew() {
		t.Error("conversation with history should not be new")
	}
}

func TestConversation_AddMessage_UpdatesLastMessageAt(t *testing.T) {
	conv := NewConversation("sess-1")

	m := NewUserMessage("hi", "")
	m.SentAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	conv.AddMessage(m)

	if !conv.LastMessageAt().Equal(m.SentAt) {
		t.Errorf("lastMessageAt = %v, want %v", conv.LastMessageAt(), m.SentAt)
	}
}

func TestConversation_StatusNeverEntersHistory(t *testing.T) {
	conv := NewConversation("sess-1")
	conv.AddMessage(NewStatusMessage(StatusEmbedding, ""))
	conv.AddAllMessages([]Message{
		NewStatusMessage(StatusSearching, ""),
		NewUserMessage("hi", ""),
	})

	if conv.Len() != 1 {
		t.Fatalf("expected only the USER message in history, got %d messages", conv.Len())
	}
	if conv.History()[0].Type != MessageUser {
		t.Errorf("expected USER, got %s", conv.History()[0].Type)
	}
}

func TestConversation_AddAllMessages_EmptyIsNoOp(t *testing.T) {
	conv := NewConversation("sess-1")
	before := conv.LastMessageAt()

	conv.AddAllMessages(nil)
	conv.AddAllMessages([]Message{})

	if conv.Len() != 0 {
		t.Errorf("expected empty history, got %d", conv.Len())
	}
	if !conv.LastMessageAt().Equal(before) {
		t.Error("empty bulk append must not touch lastMessageAt")
	}
}

func TestConversation_ToPromptMessages_Order(t *testing.T) {
	conv := NewConversation("sess-1")
	conv.AddMessage(NewSystemMessage("seed"))
	conv.AddMessage(NewUserMessage("q1", "ctx1"))
	conv.AddMessage(NewAssistantMessage("a1", nil))
	conv.AddMessage(NewUserMessage("q2", ""))

	prompt := conv.ToPromptMessages()
	if len(prompt) != 4 {
		t.Fatalf("expected 4 prompt messages, got %d", len(prompt))
	}
	wantRoles := []string{RoleSystem, RoleUser, RoleAssistant, RoleUser}
	for i, role := range wantRoles {
		if prompt[i].Role != role {
			t.Errorf("prompt[%d].Role = %s, want %s", i, prompt[i].Role, role)
		}
	}
	if prompt[3].Content != "q2" {
		t.Errorf("context-free user turn should be raw text, got %q", prompt[3].Content)
	}
}

func TestConversation_Replayable_ExcludesSystemSeed(t *testing.T) {
	conv := NewConversation("sess-1")
	conv.AddMessage(NewSystemMessage("seed"))
	conv.AddMessage(NewUserMessage("q", ""))
	conv.AddMessage(NewAssistantMessage("a", []string{"https://example.com"}))

	replay := conv.Replayable()
	if len(replay) != 2 {
		t.Fatalf("expected 2 replayable messages, got %d", len(replay))
	}
	if replay[0].Type != MessageUser || replay[1].Type != MessageAssistant {
		t.Errorf("unexpected replay order: %s, %s", replay[0].Type, replay[1].Type)
	}

	// Two sequential joins must see identical output.
	again := conv.Replayable()
	for i := range replay {
		if replay[i].Text != again[i].Text || replay[i].Type != again[i].Type {
			t.Errorf("replay not idempotent at index %d", i)
		}
	}
}

func TestConversation_ConcurrentAppends(t *testing.T) {
	conv := NewConversation("sess-1")
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				conv.AddMessage(NewUserMessage(fmt.Sprintf("w%d-%d", w, i), ""))
			}
		}(w)
	}
	wg.Wait()

	if conv.Len() != writers*perWriter {
		t.Errorf("lost messages under concurrency: got %d, want %d", conv.Len(), writers*perWriter)
	}
}
