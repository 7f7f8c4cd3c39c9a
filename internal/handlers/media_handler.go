package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sparkacademy/portal-service/internal/services"
	"github.com/sparkacademy/portal-service/internal/utils"
)

type MediaHandler struct {
	BaseHandler
	service services.MediaService
}

func NewMediaHandler(service services.MediaService, logger utils.Logger) *MediaHandler {
	return &MediaHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// ===== IMAGE ENDPOINTS =====

// GenerateImage creates an image from a prompt
// @Summary Generate image
// @Description Generate an image for a study prompt; stored in the user's bounded media history
// @Tags media
// @Accept json
// @Produce json
// @Param request body services.GenerateImageRequest true "Generation payload"
// @Success 201 {object} models.ImageGenerationResult
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Failure 502 {object} ErrorResponse "Provider unavailable"
// @Router /images/generate [post]
func (h *MediaHandler) GenerateImage(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Generating image")

	image, err := h.service.GenerateImage(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, image)
}

// EditImage applies an edit prompt to a previously generated image
// @Summary Edit image
// @Tags media
// @Accept json
// @Produce json
// @Param request body services.EditImageRequest true "Edit payload"
// @Success 201 {object} models.ImageGenerationResult
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Failure 502 {object} ErrorResponse "Provider unavailable"
// @Router /images/edit [post]
func (h *MediaHandler) EditImage(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.EditImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Editing image")

	image, err := h.service.EditImage(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, image)
}

// ListImages returns the user's image history, newest first
// @Summary List images
// @Tags media
// @Produce json
// @Param limit query int false "Max entries (default: 30)"
// @Success 200 {object} services.ImageListResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /images [get]
func (h *MediaHandler) ListImages(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "30"))
	if err != nil {
		limit = 30
	}

	images, err := h.service.ListImages(c.Request.Context(), userID, limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, images)
}

// DeleteImage removes one image from the history
// @Summary Delete image
// @Tags media
// @Produce json
// @Param id path uint true "Image ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse "Image not found"
// @Router /images/{id} [delete]
func (h *MediaHandler) DeleteImage(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting image", "image_id", id)

	if err := h.service.DeleteImage(c.Request.Context(), userID, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Image deleted successfully",
	})
}

// ===== VIDEO ENDPOINTS =====

// StartVideo queues a video generation job
// @Summary Start video job
// @Description Queue a video generation job; progress is tracked by polling the job resource
// @Tags media
// @Accept json
// @Produce json
// @Param request body services.GenerateVideoRequest true "Generation payload"
// @Success 202 {object} models.VideoJob
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Failure 502 {object} ErrorResponse "Provider unavailable"
// @Router /videos [post]
func (h *MediaHandler) StartVideo(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.GenerateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Starting video job")

	job, err := h.service.StartVideo(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// ListVideoJobs returns the user's video jobs, newest first
// @Summary List video jobs
// @Tags media
// @Produce json
// @Param limit query int false "Max entries (default: 30)"
// @Success 200 {object} services.VideoJobListResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /videos [get]
func (h *MediaHandler) ListVideoJobs(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "30"))
	if err != nil {
		limit = 30
	}

	jobs, err := h.service.ListVideoJobs(c.Request.Context(), userID, limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

// GetVideoJob returns one video job with its current state
// @Summary Get video job
// @Tags media
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.VideoJob
// @Failure 404 {object} ErrorResponse "Job not found"
// @Router /videos/{id} [get]
func (h *MediaHandler) GetVideoJob(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	job, err := h.service.GetVideoJob(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ===== ADMIN ENDPOINTS =====

// PollVideos advances pending video jobs immediately instead of waiting
// for the background worker tick
// @Summary Poll video jobs
// @Description Advance all pending video jobs against the provider now (admin only)
// @Tags admin
// @Produce json
// @Param batch query int false "Batch size (default: 50, max: 500)"
// @Success 200 {object} SuccessResponse
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Router /admin/videos/poll [post]
func (h *MediaHandler) PollVideos(c *gin.Context) {
	batch, err := strconv.Atoi(c.DefaultQuery("batch", "50"))
	if err != nil || batch < 1 {
		batch = 50
	}
	if batch > 500 {
		batch = 500
	}

	h.LogRequest(c, "Polling video jobs", "batch", batch)

	settled, err := h.service.PollVideoJobs(c.Request.Context(), batch)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Video jobs polled",
		Data:    gin.H{"settled": settled},
	})
}

// ===== HELPER METHODS =====

func (h *MediaHandler) getUserID(c *gin.Context) string {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	return userID
}

func (h *MediaHandler) parseIDParam(c *gin.Context, param string) uint {
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

// ===== ERROR HANDLING =====

func (h *MediaHandler) handleServiceError(c *gin.Context, err error) {
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
	case errors.Is(err, services.ErrImageNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Image not found",
		})
	case errors.Is(err, services.ErrVideoJobNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Video job not found",
		})
	case errors.Is(err, services.ErrImageAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied to image",
		})
	case errors.Is(err, services.ErrVideoAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied to video job",
		})
	case errors.Is(err, services.ErrProviderResponseInvalid):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: "The media generator returned an unusable result, please try again",
		})
	case errors.Is(err, services.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: "The media generator is unavailable, please try again later",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
