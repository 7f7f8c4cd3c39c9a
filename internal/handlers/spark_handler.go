package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparkacademy/portal-service/internal/services"
	"github.com/sparkacademy/portal-service/internal/utils"
)

type SparkHandler struct {
	BaseHandler
	service services.SparkService
}

func NewSparkHandler(service services.SparkService, logger utils.Logger) *SparkHandler {
	return &SparkHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// GetDailySpark returns today's motivational message
// @Summary Get daily spark
// @Description Get the per-user motivational message of the day; cached for the rest of the day once generated
// @Tags spark
// @Produce json
// @Success 200 {object} services.DailySparkResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /spark/daily [get]
func (h *SparkHandler) GetDailySpark(c *gin.Context) {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	h.LogRequest(c, "Getting daily spark")

	spark, err := h.service.GetDailySpark(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, spark)
}

func (h *SparkHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "User not found",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
