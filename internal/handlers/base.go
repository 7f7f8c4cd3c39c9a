package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/sparkacademy/portal-service/internal/utils"
)

// ErrorResponse is the error payload returned by every JSON endpoint
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps confirmations that carry no dedicated resource body
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries the shared logging plumbing for resource handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// requestLogger prefers the request-scoped logger (carrying request_id) and
// falls back to the handler's own
func (h *BaseHandler) requestLogger(c *gin.Context) utils.Logger {
	if value, exists := c.Get("logger"); exists {
		if logger, ok := value.(utils.Logger); ok {
			return logger
		}
	}
	return h.logger
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	h.requestLogger(c).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err)
	h.requestLogger(c).Error(msg, args...)
}
