package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sparkacademy/portal-service/internal/services"
	"github.com/sparkacademy/portal-service/internal/utils"
)

type LiveHandler struct {
	BaseHandler
	service  services.LiveService
	upgrader websocket.Upgrader
}

func NewLiveHandler(service services.LiveService, logger utils.Logger) *LiveHandler {
	return &LiveHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Tickets carry the authentication, browsers connect cross-origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ===== LIVE ENDPOINTS =====

// IssueTicket mints a short-lived ticket for opening a voice session
// @Summary Issue live ticket
// @Description Mint a short-lived ticket that authorizes one websocket voice session
// @Tags live
// @Accept json
// @Produce json
// @Param request body services.LiveTicketRequest true "Voice selection"
// @Success 201 {object} services.LiveTicketResponse
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Failure 503 {object} ErrorResponse "Live sessions not configured"
// @Router /live/ticket [post]
func (h *LiveHandler) IssueTicket(c *gin.Context) {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	var req services.LiveTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Issuing live session ticket", "voice", req.Voice)

	ticket, err := h.service.IssueTicket(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ticket)
}

// Connect upgrades the request to a websocket voice session. The ticket
// minted by IssueTicket is passed as a query parameter because browsers
// cannot set headers on websocket dials.
// @Summary Open live session
// @Description Upgrade to a websocket relaying audio between the client and the voice provider
// @Tags live
// @Param ticket query string true "Session ticket"
// @Success 101 {string} string "Switching protocols"
// @Failure 401 {object} ErrorResponse "Ticket invalid or expired"
// @Failure 503 {object} ErrorResponse "Live sessions not configured"
// @Router /live/ws [get]
func (h *LiveHandler) Connect(c *gin.Context) {
	claims, err := h.service.VerifyTicket(c.Query("ticket"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote its own error response
		h.LogError(c, err, "Websocket upgrade failed")
		return
	}

	h.LogRequest(c, "Live session opened", "user_id", claims.UserID, "voice", claims.Voice)

	h.service.HandleSession(c.Request.Context(), claims, conn)
}

// ===== ERROR HANDLING =====

func (h *LiveHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrLiveTicketInvalid):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Live session ticket is invalid or expired",
		})
	case errors.Is(err, services.ErrLiveUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Message: "Live sessions are not configured",
		})
	case errors.Is(err, services.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: "The voice provider is unavailable, please try again later",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
