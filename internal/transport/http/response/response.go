package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"notebookrag/internal/pkg/apperr"
)

const (
	CodeOK              = 0
	CodeBadRequest      = 40000
	CodeUnauthorized    = 40100
	CodeForbidden       = 40300
	CodeNotFound        = 40400
	CodeSessionNotFound = 40401
	CodeInternalServer  = 50000
	CodeUpstream        = 50200
)

type APIResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// FromError writes the envelope for a classified error. Persistence and
// unclassified failures are reported generically.
func FromError(c *gin.Context, err error) {
	var e *apperr.Error
	msg := "internal error"
	if errors.As(err, &e) && e.Msg != "" {
		msg = e.Msg
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		Error(c, http.StatusBadRequest, CodeBadRequest, msg)
	case apperr.KindNotFound:
		code := CodeNotFound
		if msg == "session not found" {
			code = CodeSessionNotFound
		}
		Error(c, http.StatusNotFound, code, msg)
	case apperr.KindExternalService:
		if e == nil || e.Msg == "" {
			msg = "upstream service failed"
		}
		Error(c, http.StatusBadGateway, CodeUpstream, msg)
	default:
		Error(c, http.StatusInternalServerError, CodeInternalServer, "internal error")
	}
}
