package models

import (
	"time"

	"gorm.io/gorm"
)

type TaskPriority string

const (
	PriorityHigh   TaskPriority = "High"
	PriorityMedium TaskPriority = "Medium"
	PriorityLow    TaskPriority = "Low"
)

func (p TaskPriority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type Task struct {
	ID        uint         `json:"id" gorm:"primaryKey"`
	UserID    string       `json:"user_id" gorm:"not null;index;size:255"`
	Text      string       `json:"text" gorm:"not null;size:500" validate:"required,min=1,max=500"`
	Completed bool         `json:"completed" gorm:"not null;default:false"`
	Priority  TaskPriority `json:"priority" gorm:"not null;default:Medium;size:10" validate:"omitempty,task_priority"`

	// RemindAt is optional; ReminderSent flips once the due event has been
	// published so the reminder worker never fires twice.
	RemindAt     *time.Time `json:"remind_at"`
	ReminderSent bool       `json:"reminder_sent" gorm:"not null;default:false"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (Task) TableName() string {
	return "tasks"
}
