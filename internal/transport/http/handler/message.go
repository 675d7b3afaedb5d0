package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"notebookrag/internal/app"
	"notebookrag/internal/transport/http/response"
)

type MessageHandler struct {
	messages *app.MessageService
	rag      *app.RAGService
}

type AskRequest struct {
	Question string `json:"question" binding:"required,max=4000"`
}

func NewMessageHandler(messages *app.MessageService, rag *app.RAGService) *MessageHandler {
	return &MessageHandler{messages: messages, rag: rag}
}

func (h *MessageHandler) Recent(c *gin.Context) {
	window := 0
	if raw := c.Query("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid window")
			return
		}
		window = n
	}
	messages, err := h.messages.Recent(c.Request.Context(), c.Param("id"), window)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, messages)
}

func (h *MessageHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	turn, err := h.rag.Ask(c.Request.Context(), app.AskInput{
		SessionID: c.Param("id"),
		Question:  req.Question,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, turn)
}
