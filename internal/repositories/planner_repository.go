package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/models"
)

// PlannerRepository interface for study tasks and their reminders
type PlannerRepository interface {
	// Basic CRUD operations
	CreateTask(ctx context.Context, tx *gorm.DB, task *models.Task) error
	GetTask(ctx context.Context, tx *gorm.DB, id uint) (*models.Task, error)
	ListTasks(ctx context.Context, tx *gorm.DB, userID string, filters TaskFilters) ([]*models.Task, int64, error)
	UpdateTask(ctx context.Context, tx *gorm.DB, task *models.Task) error
	DeleteTask(ctx context.Context, tx *gorm.DB, id uint) error

	// Reminder worker support. Due reminders are incomplete tasks whose
	// remind_at has passed and whose reminder has not fired yet.
	ListDueReminders(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.Task, error)
	MarkReminderSent(ctx context.Context, tx *gorm.DB, id uint) error
}
