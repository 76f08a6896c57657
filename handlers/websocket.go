package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/driftwoodlabs/raggate/datatypes"
	"github.com/driftwoodlabs/raggate/observability"
	"github.com/driftwoodlabs/raggate/session"
	"github.com/driftwoodlabs/raggate/storage"
	"github.com/driftwoodlabs/raggate/turn"
)

// sessionCookie carries the session id across requests and reconnects.
const sessionCookie = "CHAT_SESSION"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TurnRunner processes one inbound frame. Implemented by turn.Orchestrator.
type TurnRunner interface {
	HandleTurn(ctx context.Context, conv *datatypes.Conversation,
		connSessionID string, frame datatypes.UserFrame, emit turn.Emitter) turn.Result
}

// wsEmitter serializes writes to one websocket connection. The turn state
// machine and the replay path share it.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *wsEmitter) Emit(msg datatypes.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteJSON(msg)
}

func (e *wsEmitter) close(normalClosure bool, reason string) {
	code := websocket.ClosePolicyViolation
	if normalClosure {
		code = websocket.CloseNormalClosure
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason)); err != nil {
		slog.Debug("failed to write close frame", "error", err)
	}
}

// HandleChatWebSocket upgrades the request and runs the sequential frame
// loop for the connection's lifetime. The session is resolved once from the
// CHAT_SESSION cookie (or a sessionId query parameter); each admitted frame
// still revalidates it against the durable store.
func HandleChatWebSocket(turns TurnRunner, sessions session.Store,
	conversations *storage.ConversationStore, metrics *observability.ChatMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		if metrics != nil {
			metrics.ActiveConnections.Inc()
			defer metrics.ActiveConnections.Dec()
		}

		sessionID := resolveSessionID(c)
		sess := readSession(c.Request.Context(), sessions, sessionID)

		ackID := ""
		if sess != nil {
			ackID = sess.ID
		}
		slog.Info("websocket client connected", "sessionId", ackID)

		emitter := &wsEmitter{conn: ws}
		if err := emitter.Emit(datatypes.NewConnectedMessage(ackID)); err != nil {
			slog.Warn("failed to send connection ack", "error", err)
			return
		}

		conv := joinConversation(conversations, sess)
		for _, m := range conv.Replayable() {
			if err := emitter.Emit(m); err != nil {
				slog.Warn("history replay aborted", "sessionId", ackID, "error", err)
				return
			}
		}

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				slog.Info("websocket client disconnected", "sessionId", ackID, "error", err)
				return
			}

			var frame datatypes.UserFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				slog.Debug("dropping undecodable frame", "sessionId", ackID, "error", err)
				continue
			}

			res := turns.HandleTurn(c.Request.Context(), conv, sessionID, frame, emitter)
			if res.Terminated {
				emitter.close(res.NormalClosure, res.Reason)
				return
			}
		}
	}
}

// resolveSessionID prefers the cookie; browser-less clients pass the id as
// a query parameter instead.
func resolveSessionID(c *gin.Context) string {
	if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
		return id
	}
	return c.Query("sessionId")
}

// readSession treats store failures the same as an unknown id: the guard
// rejects the first frame with the session-missing reason.
func readSession(ctx context.Context, sessions session.Store, id string) *session.Session {
	if id == "" {
		return nil
	}
	sess, err := sessions.Read(ctx, id)
	if err != nil {
		slog.Warn("session read failed", "sessionId", id, "error", err)
		return nil
	}
	return sess
}

// joinConversation attaches the connection to the session's conversation.
// A session-less connection gets a detached conversation; its first frame
// terminates the connection anyway.
func joinConversation(conversations *storage.ConversationStore, sess *session.Session) *datatypes.Conversation {
	if sess == nil {
		return datatypes.NewConversation("")
	}
	conv, created := conversations.Join(sess.ID)
	if created {
		slog.Info("started conversation", "sessionId", sess.ID, "conversationId", conv.ID)
	} else {
		slog.Info("resumed conversation", "sessionId", sess.ID,
			"conversationId", conv.ID, "messages", conv.Len())
	}
	return conv
}
