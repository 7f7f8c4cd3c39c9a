package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
)

type PlannerPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewPlannerPostgreSQL(db *gorm.DB) repositories.PlannerRepository {
	return &PlannerPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (p *PlannerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return p.db
}

func (p *PlannerPostgreSQL) CreateTask(ctx context.Context, tx *gorm.DB, task *models.Task) error {
	db := p.getDB(tx)
	return db.WithContext(ctx).Create(task).Error
}

func (p *PlannerPostgreSQL) GetTask(ctx context.Context, tx *gorm.DB, id uint) (*models.Task, error) {
	db := p.getDB(tx)
	var task models.Task
	if err := db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks orders pending tasks before completed ones, then by priority
// weight, then newest first.
func (p *PlannerPostgreSQL) ListTasks(ctx context.Context, tx *gorm.DB, userID string, filters repositories.TaskFilters) ([]*models.Task, int64, error) {
	db := p.getDB(tx)
	var tasks []*models.Task
	var total int64

	query := db.WithContext(ctx).Model(&models.Task{}).Where("user_id = ?", userID)
	query = p.helpers.ApplyTaskFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.
		Order("completed ASC").
		Order("CASE priority WHEN 'High' THEN 3 WHEN 'Medium' THEN 2 WHEN 'Low' THEN 1 ELSE 0 END DESC").
		Order("created_at DESC")

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&tasks).Error; err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

func (p *PlannerPostgreSQL) UpdateTask(ctx context.Context, tx *gorm.DB, task *models.Task) error {
	db := p.getDB(tx)
	return db.WithContext(ctx).Save(task).Error
}

func (p *PlannerPostgreSQL) DeleteTask(ctx context.Context, tx *gorm.DB, id uint) error {
	db := p.getDB(tx)
	return db.WithContext(ctx).Delete(&models.Task{}, id).Error
}

// ListDueReminders fetches incomplete tasks whose reminder time has passed
// without the reminder having fired. Oldest due first so a backlog drains
// in order.
func (p *PlannerPostgreSQL) ListDueReminders(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.Task, error) {
	db := p.getDB(tx)
	if limit <= 0 {
		limit = 100
	}

	var tasks []*models.Task
	err := db.WithContext(ctx).
		Where("completed = ? AND reminder_sent = ? AND remind_at IS NOT NULL AND remind_at <= ?", false, false, now).
		Order("remind_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (p *PlannerPostgreSQL) MarkReminderSent(ctx context.Context, tx *gorm.DB, id uint) error {
	db := p.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND reminder_sent = ?", id, false).
		Update("reminder_sent", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
