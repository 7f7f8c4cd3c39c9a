package validator

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sparkacademy/portal-service/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates business rules for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateQuizSubmission validates a submitted quiz result against its run
func (bv *BusinessValidator) ValidateQuizSubmission(score, total int) ValidationErrors {
	var errors ValidationErrors

	if total < 1 {
		errors = append(errors, ValidationError{
			Field:   "total",
			Message: "quiz must contain at least one question",
			Value:   total,
			Rule:    "business_logic",
		})
	}

	if score < 0 {
		errors = append(errors, ValidationError{
			Field:   "score",
			Message: "score cannot be negative",
			Value:   score,
			Rule:    "business_logic",
		})
	}

	if total >= 1 && score > total {
		errors = append(errors, ValidationError{
			Field:   "score",
			Message: "score cannot exceed the number of questions",
			Value:   score,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateCustomQuizCreate validates custom quiz creation business rules
func (bv *BusinessValidator) ValidateCustomQuizCreate(req *CustomQuizCreateRequest) ValidationErrors {
	var errors ValidationErrors

	// Basic struct validation
	errors = append(errors, bv.Validate(req)...)

	// Question-level business validations
	errors = append(errors, bv.validateQuizQuestions(req.Questions)...)

	return errors
}

// ValidateTaskCreate validates planner task creation business rules
func (bv *BusinessValidator) ValidateTaskCreate(req *TaskCreateRequest) ValidationErrors {
	var errors ValidationErrors

	// Basic struct validation
	errors = append(errors, bv.Validate(req)...)

	if req.RemindAt != nil && req.RemindAt.Before(time.Now()) {
		errors = append(errors, ValidationError{
			Field:   "remind_at",
			Message: "must be in the future",
			Value:   req.RemindAt,
			Rule:    "business_logic",
		})
	}

	return errors
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	// Task priority must be one of the defined levels
	bv.validate.RegisterValidation("task_priority", func(fl validator.FieldLevel) bool {
		return models.TaskPriority(fl.Field().String()).IsValid()
	})

	// Topic icon comes from the closed set the client can render
	bv.validate.RegisterValidation("topic_icon", func(fl validator.FieldLevel) bool {
		return models.TopicIcon(fl.Field().String()).IsValid()
	})

	// Quiz difficulty validation
	bv.validate.RegisterValidation("quiz_difficulty", func(fl validator.FieldLevel) bool {
		return models.DifficultyLevel(fl.Field().String()).IsValid()
	})

	// Message feedback validation
	bv.validate.RegisterValidation("message_feedback", func(fl validator.FieldLevel) bool {
		return models.MessageFeedback(fl.Field().String()).IsValid()
	})

	// Task text validation (1-500 characters after trimming)
	bv.validate.RegisterValidation("task_text", func(fl validator.FieldLevel) bool {
		text := strings.TrimSpace(fl.Field().String())
		return len(text) >= 1 && len(text) <= 500
	})

	// Subject name validation (1-100 characters after trimming)
	bv.validate.RegisterValidation("subject_name", func(fl validator.FieldLevel) bool {
		name := strings.TrimSpace(fl.Field().String())
		return len(name) >= 1 && len(name) <= 100
	})

	// Reminder time validation (must be in future)
	bv.validate.RegisterValidation("future_reminder", func(fl validator.FieldLevel) bool {
		field := fl.Field()

		// Check if field can be nil and is nil (for pointer types)
		if field.Kind() == reflect.Ptr && field.IsNil() {
			return true // Optional field
		}

		// Handle both *time.Time and time.Time
		var remindAt time.Time
		if field.Kind() == reflect.Ptr {
			remindAt = field.Elem().Interface().(time.Time)
		} else {
			remindAt = field.Interface().(time.Time)
		}

		return remindAt.After(time.Now())
	})
}

// validateQuizQuestions validates business rules for user-authored questions
func (bv *BusinessValidator) validateQuizQuestions(questions []models.QuizQuestion) ValidationErrors {
	var errors ValidationErrors

	for i, q := range questions {
		if strings.TrimSpace(q.Question) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("questions[%d].question", i),
				Message: "question text cannot be empty",
				Value:   q.Question,
				Rule:    "business_logic",
			})
		}

		if len(q.Options) < 2 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("questions[%d].options", i),
				Message: "question must have at least 2 options",
				Value:   len(q.Options),
				Rule:    "business_logic",
			})
		}

		if len(q.Options) > 6 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("questions[%d].options", i),
				Message: "question cannot have more than 6 options",
				Value:   len(q.Options),
				Rule:    "business_logic",
			})
		}

		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("questions[%d].correct_index", i),
				Message: "correct answer index must point at one of the options",
				Value:   q.CorrectIndex,
				Rule:    "business_logic",
			})
		}
	}

	return errors
}
