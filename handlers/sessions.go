package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/driftwoodlabs/raggate/session"
)

// cookieMaxAge keeps the session cookie alive well past the inactivity
// window; the guard, not the cookie, decides staleness.
const cookieMaxAge = 7 * 24 * 60 * 60

// ResolveSession returns the caller's session, issuing and persisting a new
// one when the cookie is absent or points at an unknown id.
func ResolveSession(sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
			sess, err := sessions.Read(c.Request.Context(), id)
			if err != nil {
				slog.Error("failed to read session", "sessionId", id, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
				return
			}
			if sess != nil {
				c.JSON(http.StatusOK, sess)
				return
			}
			slog.Info("cookie references unknown session, reissuing", "sessionId", id)
		}

		sess := session.New()
		if err := sessions.Write(c.Request.Context(), sess); err != nil {
			slog.Error("failed to persist new session", "sessionId", sess.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}
		slog.Info("issued new session", "sessionId", sess.ID)

		c.SetCookie(sessionCookie, sess.ID, cookieMaxAge, "/", "", false, true)
		c.JSON(http.StatusOK, sess)
	}
}

// InvalidateSession removes a session from the durable store. Deleting an
// unknown id succeeds; the end state is the same.
func InvalidateSession(sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		slog.Info("received request to delete session", "sessionId", id)

		if err := sessions.Invalidate(c.Request.Context(), id); err != nil {
			slog.Error("failed to invalidate session", "sessionId", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": id})
	}
}
