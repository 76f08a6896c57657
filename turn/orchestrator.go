// Package turn drives the per-message state machine: guard admission,
// lazy system seed, retrieval with progress notifications, completion, and
// history bookkeeping.
package turn

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/driftwoodlabs/raggate/datatypes"
	"github.com/driftwoodlabs/raggate/llm"
	"github.com/driftwoodlabs/raggate/observability"
	"github.com/driftwoodlabs/raggate/retrieval"
	"github.com/driftwoodlabs/raggate/session"
)

var tracer = otel.Tracer("raggate.turn")

// systemSeed anchors every conversation before its first user message.
const systemSeed = `You are a helpful assistant that answers questions. Only use the information provided under "Context" or the previous messages if and only if it pertains to the context. If the question can't be answered based on the context or previous messages, say "I don't know"`

// Retriever produces grounding for an utterance. Implemented by
// retrieval.Pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, utterance string, notify retrieval.StageNotifier) (*retrieval.Grounding, error)
}

// Completer produces completion choices for a prompt projection.
// Implemented by llm.OpenAIClient.
type Completer interface {
	Complete(ctx context.Context, prompt []datatypes.PromptMessage) ([]llm.Choice, error)
}

// Emitter delivers one protocol message to the connected client.
type Emitter interface {
	Emit(msg datatypes.Message) error
}

// Result reports what the connection layer must do after a turn.
// Terminated means the connection must close; NormalClosure selects the
// close code.
type Result struct {
	Terminated    bool
	NormalClosure bool
	Reason        string
}

// Orchestrator processes one inbound frame at a time for a connection.
// It owns no per-connection state; the conversation carries the history.
type Orchestrator struct {
	guard     *session.Guard
	sessions  session.Store
	retriever Retriever
	completer Completer
	metrics   *observability.ChatMetrics // nil disables metrics
}

// NewOrchestrator wires the turn collaborators. metrics may be nil.
func NewOrchestrator(guard *session.Guard, sessions session.Store,
	retriever Retriever, completer Completer, metrics *observability.ChatMetrics) *Orchestrator {
	return &Orchestrator{
		guard:     guard,
		sessions:  sessions,
		retriever: retriever,
		completer: completer,
		metrics:   metrics,
	}
}

// HandleTurn runs the full state machine for one frame. connSessionID is
// the session resolved when the connection was established; the frame's own
// session id must match it. A retrieval or completion failure abandons the
// turn without closing the connection.
func (o *Orchestrator) HandleTurn(ctx context.Context, conv *datatypes.Conversation,
	connSessionID string, frame datatypes.UserFrame, emit Emitter) Result {
	ctx, span := tracer.Start(ctx, "Orchestrator.HandleTurn")
	defer span.End()
	started := time.Now()

	sess, err := o.sessions.Read(ctx, connSessionID)
	if err != nil {
		slog.Warn("session read failed, treating as absent",
			"sessionId", connSessionID, "error", err)
		sess = nil
	}

	outcome := o.guard.Admit(ctx, frame.SessionID, sess, frame.Text)
	if !outcome.Admitted {
		span.SetAttributes(attribute.String("turn.rejection", outcome.Reason))
		o.send(emit, datatypes.NewStatusMessage(datatypes.StatusTerminated, outcome.Reason))
		if outcome.NormalClosure {
			o.count(observability.OutcomeTerminated, started)
		} else {
			o.count(observability.OutcomeRejected, started)
		}
		return Result{Terminated: true, NormalClosure: outcome.NormalClosure, Reason: outcome.Reason}
	}

	if conv.IsNew() {
		conv.AddMessage(datatypes.NewSystemMessage(systemSeed))
	}

	grounding, err := o.retriever.Retrieve(ctx, frame.Text, func(stage retrieval.Stage) {
		switch stage {
		case retrieval.StageEmbedding:
			o.send(emit, datatypes.NewStatusMessage(datatypes.StatusEmbedding, "Embedding your question"))
		case retrieval.StageSearching:
			o.send(emit, datatypes.NewStatusMessage(datatypes.StatusSearching, "Searching for relevant documents"))
		}
	})
	if err != nil {
		// Abandon the turn. The user message never entered the history,
		// so the client can simply resend it.
		slog.Error("retrieval failed, abandoning turn",
			"sessionId", connSessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		o.count(observability.OutcomeError, started)
		return Result{}
	}
	if o.metrics != nil {
		o.metrics.RetrievalDocuments.Observe(float64(grounding.Documents))
	}

	o.send(emit, datatypes.NewStatusMessage(datatypes.StatusProcessing, "Generating an answer"))

	conv.AddMessage(datatypes.NewUserMessage(frame.Text, grounding.Context))

	choices, err := o.completer.Complete(ctx, conv.ToPromptMessages())
	if err != nil {
		slog.Error("completion failed, abandoning turn",
			"sessionId", connSessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		o.count(observability.OutcomeError, started)
		return Result{}
	}

	// Models occasionally echo the question back as a user-role choice;
	// those never become history or replies.
	replies := make([]datatypes.Message, 0, len(choices))
	for _, c := range choices {
		if c.Role == datatypes.RoleUser {
			continue
		}
		replies = append(replies, datatypes.NewAssistantMessage(c.Text, grounding.Sources))
	}
	conv.AddAllMessages(replies)

	reply := datatypes.NewAssistantMessage("", grounding.Sources)
	if len(replies) > 0 {
		reply = replies[0]
	}
	o.send(emit, reply)

	span.SetAttributes(
		attribute.Int("turn.documents", grounding.Documents),
		attribute.Int("turn.choices", len(choices)),
	)
	o.count(observability.OutcomeAnswered, started)
	return Result{}
}

// send logs emit failures instead of failing the turn; the read loop will
// notice a dead connection on its own.
func (o *Orchestrator) send(emit Emitter, msg datatypes.Message) {
	if err := emit.Emit(msg); err != nil {
		slog.Warn("failed to emit message", "type", msg.Type, "error", err)
	}
}

func (o *Orchestrator) count(outcome string, started time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	o.metrics.TurnDurationSeconds.Observe(time.Since(started).Seconds())
}
