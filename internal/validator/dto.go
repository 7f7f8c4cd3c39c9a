package validator

import (
	"time"

	"github.com/sparkacademy/portal-service/internal/models"
)

// QuizGenerateRequest represents the request structure for generating a quiz
type QuizGenerateRequest struct {
	Subject       string                 `json:"subject" validate:"required,subject_name"`
	Difficulty    models.DifficultyLevel `json:"difficulty" validate:"required,quiz_difficulty"`
	QuestionCount int                    `json:"question_count" validate:"omitempty,min=3,max=20"`
}

// QuizSubmitRequest represents a finished quiz run submitted for scoring
type QuizSubmitRequest struct {
	Subject string `json:"subject" validate:"required,subject_name"`
	Score   int    `json:"score" validate:"min=0"`
	Total   int    `json:"total" validate:"required,min=1"`
}

// CustomTopicCreateRequest represents the request structure for creating custom topics
type CustomTopicCreateRequest struct {
	Name string           `json:"name" validate:"required,subject_name"`
	Icon models.TopicIcon `json:"icon" validate:"required,topic_icon"`
}

// CustomQuizCreateRequest represents a user-authored quiz with its full question set
type CustomQuizCreateRequest struct {
	Title     string                `json:"title" validate:"required,min=1,max=200"`
	Questions []models.QuizQuestion `json:"questions" validate:"required,min=1,max=50"`
}

// ChatSessionCreateRequest represents the request structure for opening a chat session
type ChatSessionCreateRequest struct {
	Name string `json:"name" validate:"omitempty,max=120"`
}

// ChatSessionRenameRequest represents the request structure for renaming a chat session
type ChatSessionRenameRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

// ChatMessageRequest represents an outgoing user message
type ChatMessageRequest struct {
	Content  string  `json:"content" validate:"required,min=1,max=8000"`
	ImageURL *string `json:"image_url" validate:"omitempty,url"`
}

// MessageFeedbackRequest represents thumbs feedback on a model reply
type MessageFeedbackRequest struct {
	Feedback models.MessageFeedback `json:"feedback" validate:"required,message_feedback"`
}

// SpeakMessageRequest selects the voice for reading a reply aloud
type SpeakMessageRequest struct {
	Voice string `json:"voice" validate:"omitempty,oneof=aura breeze ember"`
}

// TaskCreateRequest represents the request structure for creating planner tasks
type TaskCreateRequest struct {
	Text     string              `json:"text" validate:"required,task_text"`
	Priority models.TaskPriority `json:"priority" validate:"omitempty,task_priority"`
	RemindAt *time.Time          `json:"remind_at" validate:"omitempty,future_reminder"`
}

// TaskUpdateRequest represents the request structure for updating planner tasks
type TaskUpdateRequest struct {
	Text      *string              `json:"text" validate:"omitempty,task_text"`
	Completed *bool                `json:"completed"`
	Priority  *models.TaskPriority `json:"priority" validate:"omitempty,task_priority"`
	RemindAt  *time.Time           `json:"remind_at" validate:"omitempty,future_reminder"`
}

// ImageGenerateRequest represents the request structure for generating an image
type ImageGenerateRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=2000"`
	Size   string `json:"size" validate:"omitempty,oneof=512x512 768x768 1024x1024"`
}

// ImageEditRequest represents an edit applied to a previously generated image
type ImageEditRequest struct {
	Prompt    string `json:"prompt" validate:"required,min=1,max=2000"`
	SourceURL string `json:"source_url" validate:"required,url"`
}

// VideoGenerateRequest represents the request structure for starting a video job
type VideoGenerateRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=2000"`
}

// ProfileUpdateRequest represents the request structure for updating a profile
type ProfileUpdateRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,min=1,max=120"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
	ClassName *string `json:"class_name" validate:"omitempty,max=120"`
}

// LiveTicketRequest represents the request structure for minting a live session ticket
type LiveTicketRequest struct {
	Voice string `json:"voice" validate:"omitempty,oneof=aura breeze ember"`
}
