package session

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// terminationKeyword ends a conversation normally when a client sends it,
// compared case-insensitively.
const terminationKeyword = "bye"

// Outcome is the guard's verdict on one inbound message. A non-admitted
// outcome is terminal for the connection; NormalClosure distinguishes the
// client saying goodbye from policy violations (missing or mismatched
// session, inactivity).
type Outcome struct {
	Admitted      bool
	Reason        string
	NormalClosure bool
}

// Guard validates an inbound message against session identity, inactivity
// timeout, and the termination keyword. On admission it touches the
// session's activity timestamp and writes it through the durable store.
type Guard struct {
	store   Store
	timeout time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewGuard builds a guard with the configured inactivity timeout.
func NewGuard(store Store, timeout time.Duration) *Guard {
	return &Guard{store: store, timeout: timeout, now: time.Now}
}

// Admit runs the ordered checks, short-circuiting on the first failure:
// session presence, identity match, inactivity window, termination keyword.
func (g *Guard) Admit(ctx context.Context, incomingID string, sess *Session, utterance string) Outcome {
	if sess == nil {
		return Outcome{Reason: "No session found."}
	}
	if incomingID != sess.ID {
		slog.Warn("rejecting message with mismatched session id",
			"sessionId", sess.ID, "incomingSessionId", incomingID)
		return Outcome{Reason: "Invalid session"}
	}

	now := g.now()
	if now.Sub(sess.LastActivityAt) > g.timeout {
		slog.Info("terminating inactive session",
			"sessionId", sess.ID, "lastActivityAt", sess.LastActivityAt)
		return Outcome{Reason: "Inactive for too long"}
	}
	if strings.EqualFold(utterance, terminationKeyword) {
		return Outcome{Reason: "You said BYE", NormalClosure: true}
	}

	sess.Touch(now)
	if err := g.store.Write(ctx, sess); err != nil {
		// The turn proceeds; only read-side absence is a session error.
		slog.Warn("failed to persist session activity touch", "sessionId", sess.ID, "error", err)
	}
	return Outcome{Admitted: true}
}
