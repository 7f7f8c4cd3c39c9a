package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/services"
	"github.com/sparkacademy/portal-service/internal/utils"
)

type PlannerHandler struct {
	BaseHandler
	service services.PlannerService
}

func NewPlannerHandler(service services.PlannerService, logger utils.Logger) *PlannerHandler {
	return &PlannerHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// ===== TASK ENDPOINTS =====

// CreateTask adds a study task
// @Summary Create task
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body services.CreateTaskRequest true "Task payload"
// @Success 201 {object} models.Task
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Router /tasks [post]
func (h *PlannerHandler) CreateTask(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating task", "priority", req.Priority, "with_reminder", req.RemindAt != nil)

	task, err := h.service.CreateTask(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

// ListTasks returns the user's tasks with optional filters
// @Summary List tasks
// @Tags tasks
// @Produce json
// @Param completed query bool false "Filter by completion state"
// @Param priority query string false "Filter by priority: low, medium, high"
// @Param page query int false "Page number (default: 1)"
// @Param size query int false "Page size (default: 50, max: 200)"
// @Success 200 {object} services.TaskListResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /tasks [get]
func (h *PlannerHandler) ListTasks(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	tasks, err := h.service.ListTasks(c.Request.Context(), userID, h.parseTaskFilters(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, tasks)
}

// GetTask returns one task
// @Summary Get task
// @Tags tasks
// @Produce json
// @Param id path uint true "Task ID"
// @Success 200 {object} models.Task
// @Failure 404 {object} ErrorResponse "Task not found"
// @Router /tasks/{id} [get]
func (h *PlannerHandler) GetTask(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	task, err := h.service.GetTask(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// UpdateTask edits a task's text, priority, reminder or completion state
// @Summary Update task
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path uint true "Task ID"
// @Param request body services.UpdateTaskRequest true "Fields to change"
// @Success 200 {object} models.Task
// @Failure 404 {object} ErrorResponse "Task not found"
// @Router /tasks/{id} [put]
func (h *PlannerHandler) UpdateTask(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Updating task", "task_id", id)

	task, err := h.service.UpdateTask(c.Request.Context(), userID, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// ToggleComplete flips a task between done and open
// @Summary Toggle task completion
// @Tags tasks
// @Produce json
// @Param id path uint true "Task ID"
// @Success 200 {object} models.Task
// @Failure 404 {object} ErrorResponse "Task not found"
// @Router /tasks/{id}/toggle [post]
func (h *PlannerHandler) ToggleComplete(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Toggling task completion", "task_id", id)

	task, err := h.service.ToggleComplete(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// DeleteTask removes a task
// @Summary Delete task
// @Tags tasks
// @Produce json
// @Param id path uint true "Task ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse "Task not found"
// @Router /tasks/{id} [delete]
func (h *PlannerHandler) DeleteTask(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting task", "task_id", id)

	if err := h.service.DeleteTask(c.Request.Context(), userID, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Task deleted successfully",
	})
}

// ===== ADMIN ENDPOINTS =====

// DispatchReminders fires due reminders immediately instead of waiting for
// the background worker tick
// @Summary Dispatch due reminders
// @Description Publish reminder events for all due tasks now (admin only)
// @Tags admin
// @Produce json
// @Param batch query int false "Batch size (default: 100, max: 1000)"
// @Success 200 {object} SuccessResponse
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Router /admin/reminders/dispatch [post]
func (h *PlannerHandler) DispatchReminders(c *gin.Context) {
	batch, err := strconv.Atoi(c.DefaultQuery("batch", "100"))
	if err != nil || batch < 1 {
		batch = 100
	}
	if batch > 1000 {
		batch = 1000
	}

	h.LogRequest(c, "Dispatching due reminders", "batch", batch)

	fired, err := h.service.DispatchDueReminders(c.Request.Context(), batch)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Reminders dispatched",
		Data:    gin.H{"fired": fired},
	})
}

// ===== HELPER METHODS =====

func (h *PlannerHandler) getUserID(c *gin.Context) string {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	return userID
}

func (h *PlannerHandler) parseIDParam(c *gin.Context, param string) uint {
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

func (h *PlannerHandler) parseTaskFilters(c *gin.Context) repositories.TaskFilters {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	size, err := strconv.Atoi(c.DefaultQuery("size", "50"))
	if err != nil || size < 1 {
		size = 50
	}
	if size > 200 {
		size = 200
	}

	filters := repositories.TaskFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}

	if completedStr := c.Query("completed"); completedStr != "" {
		if completed, err := strconv.ParseBool(completedStr); err == nil {
			filters.Completed = &completed
		}
	}

	if priorityStr := c.Query("priority"); priorityStr != "" {
		priority := models.TaskPriority(priorityStr)
		filters.Priority = &priority
	}

	return filters
}

// ===== ERROR HANDLING =====

func (h *PlannerHandler) handleServiceError(c *gin.Context, err error) {
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
	case errors.Is(err, services.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Task not found",
		})
	case errors.Is(err, services.ErrTaskAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied to task",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
