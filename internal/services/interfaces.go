package services

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sparkacademy/portal-service/internal/live"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type UpdateProfileRequest = validator.ProfileUpdateRequest

// Use business validator types
type GenerateQuizRequest = validator.QuizGenerateRequest
type SubmitQuizRequest = validator.QuizSubmitRequest
type CreateTopicRequest = validator.CustomTopicCreateRequest
type CreateCustomQuizRequest = validator.CustomQuizCreateRequest

// Use business validator types
type CreateSessionRequest = validator.ChatSessionCreateRequest
type RenameSessionRequest = validator.ChatSessionRenameRequest
type SendMessageRequest = validator.ChatMessageRequest
type MessageFeedbackRequest = validator.MessageFeedbackRequest
type SpeakMessageRequest = validator.SpeakMessageRequest

// Use business validator types
type CreateTaskRequest = validator.TaskCreateRequest
type UpdateTaskRequest = validator.TaskUpdateRequest

// Use business validator types
type GenerateImageRequest = validator.ImageGenerateRequest
type EditImageRequest = validator.ImageEditRequest
type GenerateVideoRequest = validator.VideoGenerateRequest
type LiveTicketRequest = validator.LiveTicketRequest

// ===== PROFILE RELATED DTOs =====

type ProfileResponse struct {
	*models.User
	Badges       []string                  `json:"badges"`
	Progress     []models.ProgressSnapshot `json:"progress"`
	NextRank     *models.Rank              `json:"next_rank,omitempty"`
	PointsToNext int                       `json:"points_to_next"`
	TotalQuizzes int64                     `json:"total_quizzes"`
	Accuracy     float64                   `json:"accuracy"`
}

// AwardResult describes the gamification outcome of a points grant
type AwardResult struct {
	PointsAwarded int         `json:"points_awarded"`
	TotalPoints   int         `json:"total_points"`
	Rank          models.Rank `json:"rank"`
	RankChanged   bool        `json:"rank_changed"`
	NewBadges     []string    `json:"new_badges"`
}

// ===== QUIZ RELATED DTOs =====

type GeneratedQuizResponse struct {
	Subject    string                 `json:"subject"`
	Difficulty models.DifficultyLevel `json:"difficulty"`
	Questions  []models.QuizQuestion  `json:"questions"`
}

type QuizResultResponse struct {
	*models.QuizResult
	Award AwardResult `json:"award"`
}

type QuizResultListResponse struct {
	Results []*models.QuizResult `json:"results"`
	Total   int64                `json:"total"`
	Page    int                  `json:"page"`
	Size    int                  `json:"size"`
}

// ===== CHAT RELATED DTOs =====

type ChatSessionListResponse struct {
	Sessions []*models.ChatSession `json:"sessions"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	Size     int                   `json:"size"`
}

// ChatStreamKind discriminates events on a message stream
type ChatStreamKind string

const (
	StreamDelta    ChatStreamKind = "delta"
	StreamComplete ChatStreamKind = "complete"
	StreamError    ChatStreamKind = "error"
)

// ChatStreamEvent is one server-sent event of a streaming exchange. Delta
// events carry the cumulative reply text so far; the complete event
// carries the persisted model message with citations attached.
type ChatStreamEvent struct {
	Kind    ChatStreamKind      `json:"kind"`
	Text    string              `json:"text,omitempty"`
	Message *models.ChatMessage `json:"message,omitempty"`
	Err     string              `json:"error,omitempty"`
}

// SpeechResult carries synthesized audio for a completed reply
type SpeechResult struct {
	Audio       []byte
	ContentType string
}

// ===== PLANNER RELATED DTOs =====

type TaskListResponse struct {
	Tasks []*models.Task `json:"tasks"`
	Total int64          `json:"total"`
}

// ===== MEDIA RELATED DTOs =====

type ImageListResponse struct {
	Images []*models.ImageGenerationResult `json:"images"`
	Total  int64                           `json:"total"`
}

type VideoJobListResponse struct {
	Jobs  []*models.VideoJob `json:"jobs"`
	Total int64              `json:"total"`
}

// ===== SPARK RELATED DTOs =====

// SparkSource tells the client how the spark was obtained; fallback means
// the provider was unreachable with a cold cache.
type SparkSource string

const (
	SparkGenerated SparkSource = "generated"
	SparkCached    SparkSource = "cached"
	SparkFallback  SparkSource = "fallback"
)

type DailySparkResponse struct {
	Date    string      `json:"date"`
	Message string      `json:"message"`
	Topic   string      `json:"topic,omitempty"`
	Source  SparkSource `json:"source"`
}

// ===== DASHBOARD RELATED DTOs =====

type SubjectBreakdown struct {
	Subject   string  `json:"subject"`
	Attempts  int64   `json:"attempts"`
	Accuracy  float64 `json:"accuracy"`
	BestScore float64 `json:"best_score"`
}

type DashboardOverview struct {
	TotalQuizzes   int64   `json:"total_quizzes"`
	TotalTasks     int64   `json:"total_tasks"`
	CompletedTasks int64   `json:"completed_tasks"`
	Accuracy       float64 `json:"accuracy"`
	StreakDays     int     `json:"streak_days"`
}

type DashboardGamification struct {
	TotalPoints  int          `json:"total_points"`
	Rank         models.Rank  `json:"rank"`
	NextRank     *models.Rank `json:"next_rank,omitempty"`
	PointsToNext int          `json:"points_to_next"`
	BadgeCount   int          `json:"badge_count"`
}

type DashboardResponse struct {
	Overview      DashboardOverview                `json:"overview"`
	Gamification  DashboardGamification            `json:"gamification"`
	RecentResults []repositories.RecentResultData  `json:"recent_results"`
	Subjects      []SubjectBreakdown               `json:"subjects"`
	Progress      []models.ProgressSnapshot        `json:"progress"`
	Trends        []repositories.ActivityTrendData `json:"trends"`
}

type LeaderboardEntry struct {
	Position    int         `json:"position"`
	UserID      string      `json:"user_id"`
	FullName    string      `json:"full_name"`
	AvatarURL   *string     `json:"avatar_url,omitempty"`
	Rank        models.Rank `json:"rank"`
	TotalPoints int         `json:"total_points"`
	BadgeCount  int         `json:"badge_count"`
	IsSelf      bool        `json:"is_self"`
}

type LeaderboardResponse struct {
	ClassName *string            `json:"class_name,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
}

// ===== EXPORT RELATED DTOs =====

type ExportResult struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// ===== LIVE RELATED DTOs =====

type LiveTicketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires_at"`
	Voice     string    `json:"voice"`
}

// ===== SERVICE INTERFACES =====

type ProfileService interface {
	// EnsureUser provisions the local profile row for claims seen the
	// first time and returns the stored user
	EnsureUser(ctx context.Context, seed *models.User) (*models.User, error)

	GetProfile(ctx context.Context, userID string) (*ProfileResponse, error)
	UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*ProfileResponse, error)

	// Gamification
	AwardPoints(ctx context.Context, userID string, points int, reason string) (*AwardResult, error)
	ResetProgress(ctx context.Context, userID string) (*ProfileResponse, error)
	GetRankThresholds() []models.RankThreshold
}

type QuizService interface {
	// Generation and scoring
	GenerateQuiz(ctx context.Context, userID string, req *GenerateQuizRequest) (*GeneratedQuizResponse, error)
	SubmitResult(ctx context.Context, userID string, req *SubmitQuizRequest) (*QuizResultResponse, error)
	ListResults(ctx context.Context, userID string, filters repositories.QuizResultFilters) (*QuizResultListResponse, error)

	// Custom topics
	CreateTopic(ctx context.Context, userID string, req *CreateTopicRequest) (*models.CustomTopic, error)
	ListTopics(ctx context.Context, userID string) ([]*models.CustomTopic, error)
	UpdateTopic(ctx context.Context, userID string, id uint, req *CreateTopicRequest) (*models.CustomTopic, error)
	DeleteTopic(ctx context.Context, userID string, id uint) error

	// Custom quizzes
	CreateCustomQuiz(ctx context.Context, userID string, req *CreateCustomQuizRequest) (*models.CustomQuiz, error)
	GetCustomQuiz(ctx context.Context, userID string, id uint) (*models.CustomQuiz, error)
	ListCustomQuizzes(ctx context.Context, userID string) ([]*models.CustomQuiz, error)
	DeleteCustomQuiz(ctx context.Context, userID string, id uint) error
}

type ChatService interface {
	// Sessions
	CreateSession(ctx context.Context, userID string, req *CreateSessionRequest) (*models.ChatSession, error)
	GetSession(ctx context.Context, userID string, sessionID string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID string, filters repositories.ChatSessionFilters) (*ChatSessionListResponse, error)
	RenameSession(ctx context.Context, userID string, sessionID string, req *RenameSessionRequest) error
	DeleteSession(ctx context.Context, userID string, sessionID string) error

	// StreamMessage persists the user message, opens the provider stream
	// and returns a channel of reveal events. The channel is closed after
	// the complete or error event.
	StreamMessage(ctx context.Context, userID string, sessionID string, req *SendMessageRequest) (<-chan ChatStreamEvent, error)

	ProvideFeedback(ctx context.Context, userID string, messageID string, req *MessageFeedbackRequest) error

	// SpeakMessage synthesizes a completed model reply as audio
	SpeakMessage(ctx context.Context, userID string, messageID string, req *SpeakMessageRequest) (*SpeechResult, error)

	// AppendExchange stores a finished voice exchange as a user/model
	// message pair without streaming
	AppendExchange(ctx context.Context, userID string, sessionID string, input string, output string) error
}

type PlannerService interface {
	CreateTask(ctx context.Context, userID string, req *CreateTaskRequest) (*models.Task, error)
	GetTask(ctx context.Context, userID string, id uint) (*models.Task, error)
	ListTasks(ctx context.Context, userID string, filters repositories.TaskFilters) (*TaskListResponse, error)
	UpdateTask(ctx context.Context, userID string, id uint, req *UpdateTaskRequest) (*models.Task, error)
	ToggleComplete(ctx context.Context, userID string, id uint) (*models.Task, error)
	DeleteTask(ctx context.Context, userID string, id uint) error

	// DispatchDueReminders publishes reminder events for due tasks and
	// marks them sent; returns how many fired. Worker entry point.
	DispatchDueReminders(ctx context.Context, batchSize int) (int, error)
}

type MediaService interface {
	// Images
	GenerateImage(ctx context.Context, userID string, req *GenerateImageRequest) (*models.ImageGenerationResult, error)
	EditImage(ctx context.Context, userID string, req *EditImageRequest) (*models.ImageGenerationResult, error)
	ListImages(ctx context.Context, userID string, limit int) (*ImageListResponse, error)
	DeleteImage(ctx context.Context, userID string, id uint) error

	// Videos
	StartVideo(ctx context.Context, userID string, req *GenerateVideoRequest) (*models.VideoJob, error)
	GetVideoJob(ctx context.Context, userID string, id string) (*models.VideoJob, error)
	ListVideoJobs(ctx context.Context, userID string, limit int) (*VideoJobListResponse, error)

	// PollVideoJobs advances pending jobs against the provider; returns
	// how many reached a terminal state. Worker entry point.
	PollVideoJobs(ctx context.Context, batchSize int) (int, error)
}

type SparkService interface {
	GetDailySpark(ctx context.Context, userID string) (*DailySparkResponse, error)
}

type DashboardService interface {
	GetDashboard(ctx context.Context, userID string) (*DashboardResponse, error)
	GetLeaderboard(ctx context.Context, userID string, limit int) (*LeaderboardResponse, error)
}

type ExportService interface {
	ExportProgress(ctx context.Context, userID string) (*ExportResult, error)
}

type LiveService interface {
	IssueTicket(ctx context.Context, userID string, req *LiveTicketRequest) (*LiveTicketResponse, error)
	VerifyTicket(ticket string) (*live.TicketClaims, error)

	// HandleSession drives the relay over an upgraded client connection
	// until it ends; the connection is closed on return.
	HandleSession(ctx context.Context, claims *live.TicketClaims, conn *websocket.Conn)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	// Core service getters
	Profile() ProfileService
	Quiz() QuizService
	Chat() ChatService
	Planner() PlannerService
	Media() MediaService
	Dashboard() DashboardService

	// Additional service getters
	Spark() SparkService
	Export() ExportService
	Live() LiveService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
