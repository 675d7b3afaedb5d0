package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"notebookrag/internal/app"
	"notebookrag/internal/transport/http/response"
)

type SourceHandler struct {
	sources       *app.SourceService
	maxUploadSize int64
}

func NewSourceHandler(sources *app.SourceService, maxUploadMB int) *SourceHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &SourceHandler{sources: sources, maxUploadSize: int64(maxUploadMB) << 20}
}

// Upload accepts a multipart form with "file" and an optional "category".
func (h *SourceHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.maxUploadSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}
	name := filepath.Base(file.Filename)
	if name == "." || name == "/" || name == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid file name")
		return
	}

	dir, err := os.MkdirTemp("", "notebookrag-upload-*")
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to buffer upload")
		return
	}
	defer os.RemoveAll(dir)
	localPath := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(file, localPath); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to buffer upload")
		return
	}

	result, err := h.sources.UploadFile(c.Request.Context(), app.UploadFileInput{
		SessionID: c.Param("id"),
		LocalPath: localPath,
		Category:  c.PostForm("category"),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *SourceHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	staged, err := h.sources.ListStageFiles(ctx, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	paths, err := h.sources.FilesForSession(ctx, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"files": paths, "stage": staged})
}

func (h *SourceHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	stageStats, err := h.sources.StageStats(ctx, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	chunkBytes, err := h.sources.ChunkStatistics(ctx, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"stage": stageStats, "chunk_bytes": chunkBytes})
}

func (h *SourceHandler) URL(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing path")
		return
	}
	ttl := app.DefaultSourceURLTTL
	if raw := c.Query("ttl"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 || seconds > 7*24*3600 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid ttl")
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}

	url, err := h.sources.SourceURL(c.Request.Context(), c.Param("id"), path, ttl)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"path": path, "url": url, "ttl_seconds": int(ttl.Seconds())})
}

func (h *SourceHandler) Remove(c *gin.Context) {
	name := c.Param("name")
	if err := h.sources.RemoveFile(c.Request.Context(), c.Param("id"), name); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"removed": name})
}
