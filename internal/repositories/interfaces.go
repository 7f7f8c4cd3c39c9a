package repositories

import (
	"time"

	"github.com/sparkacademy/portal-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type QuizResultFilters struct {
	Subject   *string    `json:"subject"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`    // "taken_at", "score", "subject"
	SortOrder string     `json:"sort_order"` // "asc", "desc"
}

type TaskFilters struct {
	Completed *bool                `json:"completed"`
	Priority  *models.TaskPriority `json:"priority"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

type ChatSessionFilters struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type LeaderboardFilters struct {
	ClassName *string `json:"class_name"`
	Limit     int     `json:"limit"`
}

// ===== SHARED STATISTICS STRUCTS =====

type SubjectStats struct {
	Subject   string  `json:"subject"`
	Attempts  int64   `json:"attempts"`
	Score     int64   `json:"score"`
	Total     int64   `json:"total"`
	BestScore float64 `json:"best_score"`
}

// Accuracy is the percentage of correct answers for the subject; an empty
// history yields 0, never a division error.
func (s SubjectStats) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Score) / float64(s.Total) * 100
}

type QuizStats struct {
	TotalQuizzes   int64   `json:"total_quizzes"`
	TotalScore     int64   `json:"total_score"`
	TotalQuestions int64   `json:"total_questions"`
	Accuracy       float64 `json:"accuracy"`
}
