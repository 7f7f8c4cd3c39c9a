package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/utils"
	"github.com/sparkacademy/portal-service/internal/validator"
)

const defaultReminderBatchSize = 50

// TaskReminderDueEvent is published once per task when its reminder fires
type TaskReminderDueEvent struct {
	TaskID   uint      `json:"task_id"`
	UserID   string    `json:"user_id"`
	Text     string    `json:"text"`
	RemindAt time.Time `json:"remind_at"`
	FiredAt  time.Time `json:"fired_at"`
}

type plannerService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

// NewPlannerService creates a new planner service instance
func NewPlannerService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) PlannerService {
	return &plannerService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

// ===== TASK CRUD =====

func (s *plannerService) CreateTask(ctx context.Context, userID string, req *CreateTaskRequest) (*models.Task, error) {
	s.logger.Info("Creating task", "user_id", userID)

	if ruleErrs := s.validator.GetBusinessValidator().ValidateTaskCreate(req); len(ruleErrs) > 0 {
		return nil, ruleErrs
	}

	text, err := utils.SanitizePlainText(req.Text)
	if err != nil {
		return nil, NewBusinessRuleError("task text contains no usable text", "task_text", map[string]interface{}{
			"text": req.Text,
		})
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	task := &models.Task{
		UserID:   userID,
		Text:     text,
		Priority: priority,
		RemindAt: req.RemindAt,
	}
	if err := s.repo.Planner().CreateTask(ctx, nil, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

func (s *plannerService) GetTask(ctx context.Context, userID string, id uint) (*models.Task, error) {
	return s.loadOwnedTask(ctx, userID, id)
}

func (s *plannerService) ListTasks(ctx context.Context, userID string, filters repositories.TaskFilters) (*TaskListResponse, error) {
	tasks, total, err := s.repo.Planner().ListTasks(ctx, nil, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return &TaskListResponse{
		Tasks: tasks,
		Total: total,
	}, nil
}

func (s *plannerService) UpdateTask(ctx context.Context, userID string, id uint, req *UpdateTaskRequest) (*models.Task, error) {
	s.logger.Info("Updating task", "user_id", userID, "task_id", id)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	task, err := s.loadOwnedTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Text != nil {
		text, err := utils.SanitizePlainText(*req.Text)
		if err != nil {
			return nil, NewBusinessRuleError("task text contains no usable text", "task_text", map[string]interface{}{
				"text": *req.Text,
			})
		}
		task.Text = text
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.RemindAt != nil {
		task.RemindAt = req.RemindAt
		// A moved reminder fires again even if the old one already did
		task.ReminderSent = false
	}

	if err := s.repo.Planner().UpdateTask(ctx, nil, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return task, nil
}

func (s *plannerService) ToggleComplete(ctx context.Context, userID string, id uint) (*models.Task, error) {
	s.logger.Info("Toggling task completion", "user_id", userID, "task_id", id)

	task, err := s.loadOwnedTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	task.Completed = !task.Completed
	if err := s.repo.Planner().UpdateTask(ctx, nil, task); err != nil {
		return nil, fmt.Errorf("failed to toggle task: %w", err)
	}

	return task, nil
}

func (s *plannerService) DeleteTask(ctx context.Context, userID string, id uint) error {
	s.logger.Info("Deleting task", "user_id", userID, "task_id", id)

	if _, err := s.loadOwnedTask(ctx, userID, id); err != nil {
		return err
	}

	if err := s.repo.Planner().DeleteTask(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// ===== REMINDER DISPATCH =====

// DispatchDueReminders publishes one event per due reminder and marks it
// sent. Marking happens before publishing is confirmed durable, so a task
// reminder fires at most once.
func (s *plannerService) DispatchDueReminders(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultReminderBatchSize
	}

	now := time.Now().UTC()
	due, err := s.repo.Planner().ListDueReminders(ctx, nil, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}

	fired := 0
	for _, task := range due {
		if err := s.repo.Planner().MarkReminderSent(ctx, nil, task.ID); err != nil {
			s.logger.Error("Failed to mark reminder sent", "task_id", task.ID, "error", err)
			continue
		}

		if s.publisher != nil && task.RemindAt != nil {
			event := TaskReminderDueEvent{
				TaskID:   task.ID,
				UserID:   task.UserID,
				Text:     task.Text,
				RemindAt: *task.RemindAt,
				FiredAt:  now,
			}
			if err := s.publisher.Publish(ctx, events.EventTypeTaskReminderDue, event); err != nil {
				s.logger.Warn("Failed to publish reminder event", "task_id", task.ID, "error", err)
			}
		}
		fired++
	}

	if fired > 0 {
		s.logger.Info("Dispatched due reminders", "count", fired)
	}
	return fired, nil
}

// ===== HELPER METHODS =====

func (s *plannerService) loadOwnedTask(ctx context.Context, userID string, id uint) (*models.Task, error) {
	task, err := s.repo.Planner().GetTask(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task.UserID != userID {
		return nil, ErrTaskAccessDenied
	}
	return task, nil
}
