package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"notebookrag/internal/stage"
	"notebookrag/internal/transport/http/response"
)

// StageHandler serves signed download links of the local stage backend.
type StageHandler struct {
	gateway *stage.LocalGateway
}

func NewStageHandler(gateway *stage.LocalGateway) *StageHandler {
	return &StageHandler{gateway: gateway}
}

func (h *StageHandler) Download(c *gin.Context) {
	namespace, name := c.Param("namespace"), c.Param("name")
	if err := h.gateway.Verify(namespace, name, c.Query("expires"), c.Query("signature")); err != nil {
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
		return
	}

	rc, err := h.gateway.Open(c.Request.Context(), namespace, name)
	if err != nil {
		if errors.Is(err, stage.ErrNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "file not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "open file failed")
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
