package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/services"
	"github.com/sparkacademy/portal-service/internal/storage"
	"github.com/sparkacademy/portal-service/internal/utils"
)

// maxChatUploadBytes caps the optional image attached to a message
const maxChatUploadBytes = 8 << 20

type ChatHandler struct {
	BaseHandler
	service services.ChatService
	store   storage.ObjectStore
}

func NewChatHandler(service services.ChatService, store storage.ObjectStore, logger utils.Logger) *ChatHandler {
	return &ChatHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
		store:       store,
	}
}

// ===== SESSION ENDPOINTS =====

// CreateSession opens a new tutor conversation
// @Summary Create chat session
// @Tags chat
// @Accept json
// @Produce json
// @Param request body services.CreateSessionRequest true "Session payload"
// @Success 201 {object} models.ChatSession
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Router /chat/sessions [post]
func (h *ChatHandler) CreateSession(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating chat session")

	session, err := h.service.CreateSession(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// ListSessions pages through the user's conversations, most recent first
// @Summary List chat sessions
// @Tags chat
// @Produce json
// @Param page query int false "Page number (default: 1)"
// @Param size query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} services.ChatSessionListResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /chat/sessions [get]
func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	size, err := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err != nil || size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), userID, repositories.ChatSessionFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// GetSession returns one conversation with its messages in order
// @Summary Get chat session
// @Tags chat
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.ChatSession
// @Failure 404 {object} ErrorResponse "Session not found"
// @Router /chat/sessions/{id} [get]
func (h *ChatHandler) GetSession(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	session, err := h.service.GetSession(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// RenameSession changes a conversation's display name
// @Summary Rename chat session
// @Tags chat
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body services.RenameSessionRequest true "New name"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse "Session not found"
// @Router /chat/sessions/{id} [put]
func (h *ChatHandler) RenameSession(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Renaming chat session", "session_id", c.Param("id"))

	if err := h.service.RenameSession(c.Request.Context(), userID, c.Param("id"), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Session renamed successfully",
	})
}

// DeleteSession removes a conversation and its messages
// @Summary Delete chat session
// @Tags chat
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse "Session not found"
// @Router /chat/sessions/{id} [delete]
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Deleting chat session", "session_id", c.Param("id"))

	if err := h.service.DeleteSession(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Session deleted successfully",
	})
}

// ===== MESSAGE ENDPOINTS =====

// StreamMessage sends a user message and streams the tutor reply as SSE.
// The body is either JSON or multipart/form-data with a "content" field and
// an optional "image" file that is uploaded to object storage first.
// @Summary Send message
// @Description Send a message to the tutor; the reply is streamed as server-sent events (delta, complete, error)
// @Tags chat
// @Accept json
// @Accept multipart/form-data
// @Produce text/event-stream
// @Param id path string true "Session ID"
// @Param request body services.SendMessageRequest true "Message payload"
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Failure 404 {object} ErrorResponse "Session not found"
// @Failure 502 {object} ErrorResponse "Provider unavailable"
// @Router /chat/sessions/{id}/messages [post]
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	req, ok := h.bindMessageRequest(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Streaming chat message", "session_id", c.Param("id"), "with_image", req.ImageURL != nil)

	events, err := h.service.StreamMessage(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		switch event.Kind {
		case services.StreamDelta:
			c.SSEvent(string(event.Kind), gin.H{"text": event.Text})
		case services.StreamComplete:
			c.SSEvent(string(event.Kind), event.Message)
		case services.StreamError:
			c.SSEvent(string(event.Kind), gin.H{"error": event.Err})
		}
		return true
	})
}

// ProvideFeedback records thumbs feedback on a model reply
// @Summary Message feedback
// @Tags chat
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param request body services.MessageFeedbackRequest true "Feedback value (up or down)"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse "Message not found"
// @Failure 422 {object} ErrorResponse "Feedback not permitted"
// @Router /chat/messages/{id}/feedback [post]
func (h *ChatHandler) ProvideFeedback(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.MessageFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Recording message feedback", "message_id", c.Param("id"), "feedback", req.Feedback)

	if err := h.service.ProvideFeedback(c.Request.Context(), userID, c.Param("id"), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Feedback recorded successfully",
	})
}

// SpeakMessage reads a completed tutor reply aloud
// @Summary Synthesize reply audio
// @Tags chat
// @Accept json
// @Produce octet-stream
// @Param id path string true "Message ID"
// @Param request body services.SpeakMessageRequest false "Voice selection"
// @Success 200 {string} binary "Audio bytes"
// @Failure 404 {object} ErrorResponse "Message not found"
// @Failure 422 {object} ErrorResponse "Speech not permitted"
// @Failure 502 {object} ErrorResponse "Provider unavailable"
// @Router /chat/messages/{id}/speech [post]
func (h *ChatHandler) SpeakMessage(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	// The body is optional; an empty one means the default voice
	req := &services.SpeakMessageRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid request body",
				Details: err.Error(),
			})
			return
		}
	}

	h.LogRequest(c, "Synthesizing reply audio", "message_id", c.Param("id"), "voice", req.Voice)

	result, err := h.service.SpeakMessage(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Data(http.StatusOK, result.ContentType, result.Audio)
}

// ===== HELPER METHODS =====

func (h *ChatHandler) getUserID(c *gin.Context) string {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	return userID
}

// bindMessageRequest reads the message from JSON or multipart form. A
// multipart "image" file is uploaded and its URL attached to the request.
func (h *ChatHandler) bindMessageRequest(c *gin.Context) (*services.SendMessageRequest, bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		var req services.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid request body",
				Details: err.Error(),
			})
			return nil, false
		}
		return &req, true
	}

	req := &services.SendMessageRequest{Content: c.PostForm("content")}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return req, true
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid multipart form",
			Details: err.Error(),
		})
		return nil, false
	}

	if fileHeader.Size > maxChatUploadBytes {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Image is too large",
			Details: "images are limited to 8 MiB",
		})
		return nil, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Could not read uploaded image",
			Details: err.Error(),
		})
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxChatUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Could not read uploaded image",
			Details: err.Error(),
		})
		return nil, false
	}
	if len(data) > maxChatUploadBytes {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Image is too large",
			Details: "images are limited to 8 MiB",
		})
		return nil, false
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Attachment must be an image",
			Details: "got content type " + contentType,
		})
		return nil, false
	}

	key := storage.BuildObjectKey("chat", fileHeader.Filename)
	url, err := h.store.Put(c.Request.Context(), key, data, contentType)
	if err != nil {
		h.LogError(c, err, "Failed to upload chat image")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Could not store uploaded image",
		})
		return nil, false
	}

	req.ImageURL = &url
	return req, true
}

// ===== ERROR HANDLING =====

func (h *ChatHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule":    businessRuleError.Rule,
				"context": businessRuleError.Context,
			},
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Session not found",
		})
	case errors.Is(err, services.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Message not found",
		})
	case errors.Is(err, services.ErrSessionAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied to session",
		})
	case errors.Is(err, services.ErrMessageNotCompleted):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Message is still streaming",
		})
	case errors.Is(err, services.ErrFeedbackNotPermitted):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Feedback is only allowed on completed tutor replies",
		})
	case errors.Is(err, services.ErrSpeechNotPermitted):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Only completed tutor replies can be read aloud",
		})
	case errors.Is(err, services.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: "The tutor is unavailable, please try again later",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
