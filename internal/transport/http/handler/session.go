package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"notebookrag/internal/app"
	"notebookrag/internal/transport/http/response"
)

type SessionHandler struct {
	sessions *app.SessionService
}

type CreateSessionRequest struct {
	Title    string  `json:"title" binding:"required,max=256"`
	Category *string `json:"category" binding:"omitempty,max=128"`
}

type UpdateSessionRequest struct {
	Title    *string `json:"title" binding:"omitempty,max=256"`
	Category *string `json:"category" binding:"omitempty,max=128"`
}

func NewSessionHandler(sessions *app.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	session, err := h.sessions.CreateSession(c.Request.Context(), app.CreateSessionInput{
		Title:    req.Title,
		Category: req.Category,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) List(c *gin.Context) {
	activeOnly := true
	if raw := c.Query("active_only"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid active_only")
			return
		}
		activeOnly = parsed
	}
	sessions, err := h.sessions.ListSessions(c.Request.Context(), activeOnly)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, sessions)
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Update(c *gin.Context) {
	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	updated, err := h.sessions.UpdateSession(c.Request.Context(), app.UpdateSessionInput{
		ID:       c.Param("id"),
		Title:    req.Title,
		Category: req.Category,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"updated": updated})
}

// Delete removes the session with everything it owns. ?mode=soft only hides it.
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if c.Query("mode") == "soft" {
		deleted, err := h.sessions.SoftDeleteSession(c.Request.Context(), id)
		if err != nil {
			response.FromError(c, err)
			return
		}
		response.OK(c, gin.H{"session_id": id, "deleted": deleted})
		return
	}

	if err := h.sessions.DeleteSession(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"session_id": id, "deleted": true})
}

func (h *SessionHandler) Stats(c *gin.Context) {
	stats, err := h.sessions.SessionStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, stats)
}
