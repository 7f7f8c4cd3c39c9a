package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparkacademy/portal-service/internal/config"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/services"
	"github.com/sparkacademy/portal-service/internal/storage"
	"github.com/sparkacademy/portal-service/internal/utils"
)

type HandlerManager struct {
	serviceManager   services.ServiceManager
	profileHandler   *ProfileHandler
	quizHandler      *QuizHandler
	chatHandler      *ChatHandler
	plannerHandler   *PlannerHandler
	mediaHandler     *MediaHandler
	liveHandler      *LiveHandler
	sparkHandler     *SparkHandler
	dashboardHandler *DashboardHandler
	authMiddleware   *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	store storage.ObjectStore,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, serviceManager.Profile())

	return &HandlerManager{
		serviceManager:   serviceManager,
		profileHandler:   NewProfileHandler(serviceManager.Profile(), serviceManager.Export(), logger),
		quizHandler:      NewQuizHandler(serviceManager.Quiz(), logger),
		chatHandler:      NewChatHandler(serviceManager.Chat(), store, logger),
		plannerHandler:   NewPlannerHandler(serviceManager.Planner(), logger),
		mediaHandler:     NewMediaHandler(serviceManager.Media(), logger),
		liveHandler:      NewLiveHandler(serviceManager.Live(), logger),
		sparkHandler:     NewSparkHandler(serviceManager.Spark(), logger),
		dashboardHandler: NewDashboardHandler(serviceManager.Dashboard(), logger),
		authMiddleware:   authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Profile routes
		profile := v1.Group("/profile")
		{
			profile.GET("", hm.profileHandler.GetProfile)
			profile.PUT("", hm.profileHandler.UpdateProfile)
			profile.POST("/reset", hm.profileHandler.ResetProgress)
			profile.GET("/export", hm.profileHandler.ExportProgress)
		}
		v1.GET("/ranks", hm.profileHandler.GetRanks)

		// Quiz routes
		quizzes := v1.Group("/quizzes")
		{
			quizzes.POST("/generate", hm.quizHandler.GenerateQuiz)
			quizzes.POST("/results", hm.quizHandler.SubmitResult)
			quizzes.GET("/results", hm.quizHandler.ListResults)
		}

		// Custom topic routes
		topics := v1.Group("/topics")
		{
			topics.POST("", hm.quizHandler.CreateTopic)
			topics.GET("", hm.quizHandler.ListTopics)
			topics.PUT("/:id", hm.quizHandler.UpdateTopic)
			topics.DELETE("/:id", hm.quizHandler.DeleteTopic)
		}

		// Custom quiz routes
		customQuizzes := v1.Group("/custom-quizzes")
		{
			customQuizzes.POST("", hm.quizHandler.CreateCustomQuiz)
			customQuizzes.GET("", hm.quizHandler.ListCustomQuizzes)
			customQuizzes.GET("/:id", hm.quizHandler.GetCustomQuiz)
			customQuizzes.DELETE("/:id", hm.quizHandler.DeleteCustomQuiz)
		}

		// Chat routes
		chat := v1.Group("/chat")
		{
			chat.POST("/sessions", hm.chatHandler.CreateSession)
			chat.GET("/sessions", hm.chatHandler.ListSessions)
			chat.GET("/sessions/:id", hm.chatHandler.GetSession)
			chat.PUT("/sessions/:id", hm.chatHandler.RenameSession)
			chat.DELETE("/sessions/:id", hm.chatHandler.DeleteSession)
			chat.POST("/sessions/:id/messages", hm.chatHandler.StreamMessage)
			chat.POST("/messages/:id/feedback", hm.chatHandler.ProvideFeedback)
			chat.POST("/messages/:id/speech", hm.chatHandler.SpeakMessage)
		}

		// Planner routes
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", hm.plannerHandler.CreateTask)
			tasks.GET("", hm.plannerHandler.ListTasks)
			tasks.GET("/:id", hm.plannerHandler.GetTask)
			tasks.PUT("/:id", hm.plannerHandler.UpdateTask)
			tasks.POST("/:id/toggle", hm.plannerHandler.ToggleComplete)
			tasks.DELETE("/:id", hm.plannerHandler.DeleteTask)
		}

		// Media routes
		images := v1.Group("/images")
		{
			images.POST("/generate", hm.mediaHandler.GenerateImage)
			images.POST("/edit", hm.mediaHandler.EditImage)
			images.GET("", hm.mediaHandler.ListImages)
			images.DELETE("/:id", hm.mediaHandler.DeleteImage)
		}
		videos := v1.Group("/videos")
		{
			videos.POST("", hm.mediaHandler.StartVideo)
			videos.GET("", hm.mediaHandler.ListVideoJobs)
			videos.GET("/:id", hm.mediaHandler.GetVideoJob)
		}

		// Live session ticket
		v1.POST("/live/ticket", hm.liveHandler.IssueTicket)

		// Daily spark
		v1.GET("/spark/daily", hm.sparkHandler.GetDailySpark)

		// Dashboard routes
		dashboard := v1.Group("/dashboard")
		{
			dashboard.GET("", hm.dashboardHandler.GetDashboard)
			dashboard.GET("/leaderboard", hm.dashboardHandler.GetLeaderboard)
		}

		// Admin routes - manual worker triggers
		admin := v1.Group("/admin")
		admin.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin))
		{
			admin.POST("/reminders/dispatch", hm.plannerHandler.DispatchReminders)
			admin.POST("/videos/poll", hm.mediaHandler.PollVideos)
		}
	}

	// The websocket endpoint authenticates with a ticket instead of the
	// Authorization header, which browsers cannot set on websocket dials
	router.GET("/api/v1/live/ws", hm.liveHandler.Connect)

	// Health endpoints
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "portal-service",
		})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"service": "portal-service",
		})
	})
}
