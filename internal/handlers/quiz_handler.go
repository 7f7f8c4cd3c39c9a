package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/services"
	"github.com/sparkacademy/portal-service/internal/utils"
)

type QuizHandler struct {
	BaseHandler
	service services.QuizService
}

func NewQuizHandler(service services.QuizService, logger utils.Logger) *QuizHandler {
	return &QuizHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// ===== QUIZ ENDPOINTS =====

// GenerateQuiz produces a fresh quiz for a subject
// @Summary Generate quiz
// @Description Generate a quiz for the given subject and difficulty with shuffled answer options
// @Tags quizzes
// @Accept json
// @Produce json
// @Param request body services.GenerateQuizRequest true "Generation parameters"
// @Success 200 {object} services.GeneratedQuizResponse
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 502 {object} ErrorResponse "Provider unavailable"
// @Router /quizzes/generate [post]
func (h *QuizHandler) GenerateQuiz(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.GenerateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Generating quiz", "subject", req.Subject, "difficulty", req.Difficulty)

	quiz, err := h.service.GenerateQuiz(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

// SubmitResult records a finished quiz run and awards points
// @Summary Submit quiz result
// @Description Record a finished quiz run; returns the stored result with the gamification outcome
// @Tags quizzes
// @Accept json
// @Produce json
// @Param request body services.SubmitQuizRequest true "Quiz run outcome"
// @Success 201 {object} services.QuizResultResponse
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /quizzes/results [post]
func (h *QuizHandler) SubmitResult(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.SubmitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Submitting quiz result", "subject", req.Subject, "score", req.Score, "total", req.Total)

	result, err := h.service.SubmitResult(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ListResults returns the user's quiz history
// @Summary List quiz results
// @Description Page through the current user's quiz history with optional subject and date filters
// @Tags quizzes
// @Produce json
// @Param page query int false "Page number (default: 1)"
// @Param size query int false "Page size (default: 10, max: 100)"
// @Param subject query string false "Filter by subject"
// @Param from query string false "Filter from date (RFC3339)"
// @Param to query string false "Filter to date (RFC3339)"
// @Param sort_by query string false "Sort by: taken_at, score, subject (default: taken_at)"
// @Param sort_order query string false "Sort order: asc, desc (default: desc)"
// @Success 200 {object} services.QuizResultListResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /quizzes/results [get]
func (h *QuizHandler) ListResults(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Listing quiz results")

	results, err := h.service.ListResults(c.Request.Context(), userID, h.parseResultFilters(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// ===== CUSTOM TOPIC ENDPOINTS =====

// CreateTopic adds a custom quiz topic
// @Summary Create custom topic
// @Description Create a named topic with an icon for later quiz generation
// @Tags topics
// @Accept json
// @Produce json
// @Param request body services.CreateTopicRequest true "Topic payload"
// @Success 201 {object} models.CustomTopic
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Failure 409 {object} ErrorResponse "Duplicate topic name"
// @Router /topics [post]
func (h *QuizHandler) CreateTopic(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating custom topic", "name", req.Name)

	topic, err := h.service.CreateTopic(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, topic)
}

// ListTopics returns the user's custom topics
// @Summary List custom topics
// @Tags topics
// @Produce json
// @Success 200 {array} models.CustomTopic
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /topics [get]
func (h *QuizHandler) ListTopics(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	topics, err := h.service.ListTopics(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, topics)
}

// UpdateTopic renames a custom topic or changes its icon
// @Summary Update custom topic
// @Tags topics
// @Accept json
// @Produce json
// @Param id path uint true "Topic ID"
// @Param request body services.CreateTopicRequest true "Topic payload"
// @Success 200 {object} models.CustomTopic
// @Failure 404 {object} ErrorResponse "Topic not found"
// @Router /topics/{id} [put]
func (h *QuizHandler) UpdateTopic(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Updating custom topic", "topic_id", id)

	topic, err := h.service.UpdateTopic(c.Request.Context(), userID, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, topic)
}

// DeleteTopic removes a custom topic
// @Summary Delete custom topic
// @Tags topics
// @Produce json
// @Param id path uint true "Topic ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse "Topic not found"
// @Router /topics/{id} [delete]
func (h *QuizHandler) DeleteTopic(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting custom topic", "topic_id", id)

	if err := h.service.DeleteTopic(c.Request.Context(), userID, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Topic deleted successfully",
	})
}

// ===== CUSTOM QUIZ ENDPOINTS =====

// CreateCustomQuiz stores a user-authored quiz
// @Summary Create custom quiz
// @Description Store a user-authored quiz with its full question set
// @Tags custom-quizzes
// @Accept json
// @Produce json
// @Param request body services.CreateCustomQuizRequest true "Quiz payload"
// @Success 201 {object} models.CustomQuiz
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Router /custom-quizzes [post]
func (h *QuizHandler) CreateCustomQuiz(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.CreateCustomQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating custom quiz", "title", req.Title, "questions", len(req.Questions))

	quiz, err := h.service.CreateCustomQuiz(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, quiz)
}

// ListCustomQuizzes returns the user's authored quizzes
// @Summary List custom quizzes
// @Tags custom-quizzes
// @Produce json
// @Success 200 {array} models.CustomQuiz
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /custom-quizzes [get]
func (h *QuizHandler) ListCustomQuizzes(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	quizzes, err := h.service.ListCustomQuizzes(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quizzes)
}

// GetCustomQuiz returns one authored quiz with its questions
// @Summary Get custom quiz
// @Tags custom-quizzes
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {object} models.CustomQuiz
// @Failure 404 {object} ErrorResponse "Quiz not found"
// @Router /custom-quizzes/{id} [get]
func (h *QuizHandler) GetCustomQuiz(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	quiz, err := h.service.GetCustomQuiz(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

// DeleteCustomQuiz removes an authored quiz
// @Summary Delete custom quiz
// @Tags custom-quizzes
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse "Quiz not found"
// @Router /custom-quizzes/{id} [delete]
func (h *QuizHandler) DeleteCustomQuiz(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting custom quiz", "quiz_id", id)

	if err := h.service.DeleteCustomQuiz(c.Request.Context(), userID, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Quiz deleted successfully",
	})
}

// ===== HELPER METHODS =====

func (h *QuizHandler) getUserID(c *gin.Context) string {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	return userID
}

func (h *QuizHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID must be a valid number",
		})
		return 0
	}
	return uint(id)
}

func (h *QuizHandler) parseResultFilters(c *gin.Context) repositories.QuizResultFilters {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil || size < 1 {
		size = 10
	}
	if size > 100 {
		size = 100
	}

	filters := repositories.QuizResultFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.DefaultQuery("sort_by", "taken_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if subject := c.Query("subject"); subject != "" {
		filters.Subject = &subject
	}

	if fromStr := c.Query("from"); fromStr != "" {
		if parsed, err := time.Parse(time.RFC3339, fromStr); err == nil {
			filters.DateFrom = &parsed
		}
	}

	if toStr := c.Query("to"); toStr != "" {
		if parsed, err := time.Parse(time.RFC3339, toStr); err == nil {
			filters.DateTo = &parsed
		}
	}

	return filters
}

// ===== ERROR HANDLING =====

func (h *QuizHandler) handleServiceError(c *gin.Context, err error) {
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

	switch {
	case errors.Is(err, services.ErrTopicNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Topic not found",
		})
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz not found",
		})
	case errors.Is(err, services.ErrTopicAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied to topic",
		})
	case errors.Is(err, services.ErrQuizAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied to quiz",
		})
	case errors.Is(err, services.ErrDuplicateTopicName):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "A topic with this name already exists",
		})
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "User not found",
		})
	case errors.Is(err, services.ErrQuizEmpty), errors.Is(err, services.ErrProviderResponseInvalid):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: "The quiz generator returned an unusable quiz, please try again",
		})
	case errors.Is(err, services.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: "The quiz generator is unavailable, please try again later",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
