package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "Easy"
	DifficultyMedium DifficultyLevel = "Medium"
	DifficultyHard   DifficultyLevel = "Hard"
)

func (d DifficultyLevel) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuizResult is an append-only log entry: rows are inserted when a quiz is
// finished and never updated afterwards.
type QuizResult struct {
	ID      uint      `json:"id" gorm:"primaryKey"`
	UserID  string    `json:"user_id" gorm:"not null;index;size:255"`
	Subject string    `json:"subject" gorm:"not null;size:100;index" validate:"required,min=1,max=100"`
	Score   int       `json:"score" gorm:"not null" validate:"min=0"`
	Total   int       `json:"total" gorm:"not null" validate:"required,min=1"`
	TakenAt time.Time `json:"taken_at" gorm:"not null;index"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (QuizResult) TableName() string {
	return "quiz_results"
}

// TopicIcon is the closed set of icons a custom topic can carry. Unknown
// values are rejected at parse time instead of falling back silently.
type TopicIcon string

const (
	IconAtom       TopicIcon = "atom"
	IconBook       TopicIcon = "book"
	IconCalculator TopicIcon = "calculator"
	IconCode       TopicIcon = "code"
	IconFlask      TopicIcon = "flask"
	IconGlobe      TopicIcon = "globe"
	IconMusic      TopicIcon = "music"
	IconPalette    TopicIcon = "palette"
	IconScroll     TopicIcon = "scroll"
	IconSprout     TopicIcon = "sprout"
)

var topicIconLabels = map[TopicIcon]string{
	IconAtom:       "Physics",
	IconBook:       "Literature",
	IconCalculator: "Mathematics",
	IconCode:       "Programming",
	IconFlask:      "Chemistry",
	IconGlobe:      "Geography",
	IconMusic:      "Music",
	IconPalette:    "Art",
	IconScroll:     "History",
	IconSprout:     "Biology",
}

func (i TopicIcon) IsValid() bool {
	_, ok := topicIconLabels[i]
	return ok
}

// Label returns the display label for the icon variant.
func (i TopicIcon) Label() string {
	return topicIconLabels[i]
}

// ParseTopicIcon maps a string onto the closed icon set.
func ParseTopicIcon(s string) (TopicIcon, error) {
	icon := TopicIcon(s)
	if !icon.IsValid() {
		return "", fmt.Errorf("unknown topic icon %q", s)
	}
	return icon, nil
}

// CustomTopic is a user-authored study topic used for quiz and chat prompts.
type CustomTopic struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"not null;index;size:255"`
	Name        string    `json:"name" gorm:"not null;size:100" validate:"required,min=1,max=100"`
	Description *string   `json:"description" gorm:"type:text" validate:"omitempty,max=500"`
	Icon        TopicIcon `json:"icon" gorm:"not null;size:20" validate:"required,topic_icon"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (CustomTopic) TableName() string {
	return "custom_topics"
}

// QuizQuestion is one generated or user-authored question. Quizzes store
// their question list as a JSON payload, mirroring how they travel to the
// client; there is no per-question table.
type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// CustomQuiz is a user-authored quiz definition.
type CustomQuiz struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	UserID        string         `json:"user_id" gorm:"not null;index;size:255"`
	Title         string         `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Subject       string         `json:"subject" gorm:"not null;size:100" validate:"required,min=1,max=100"`
	Questions     datatypes.JSON `json:"questions" gorm:"type:jsonb"`
	QuestionCount int            `json:"question_count" gorm:"not null;default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (CustomQuiz) TableName() string {
	return "custom_quizzes"
}
