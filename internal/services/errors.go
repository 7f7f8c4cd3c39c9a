package services

import (
	"errors"
	"fmt"

	"github.com/sparkacademy/portal-service/internal/validator"
)

// ValidationErrors re-exports the validator error collection so handlers
// can match it with errors.As against the services package alone.
type ValidationErrors = validator.ValidationErrors

// ===== GENERIC ERRORS =====

var (
	ErrNotFound                = errors.New("resource not found")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrForbidden               = errors.New("forbidden")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrValidationFailed        = errors.New("validation failed")
	ErrBadRequest              = errors.New("bad request")
	ErrConflict                = errors.New("conflict")
)

// ===== PROFILE ERRORS =====

var (
	ErrUserNotFound = errors.New("user not found")
)

// ===== QUIZ ERRORS =====

var (
	ErrTopicNotFound      = errors.New("custom topic not found")
	ErrQuizNotFound       = errors.New("custom quiz not found")
	ErrQuizEmpty          = errors.New("generated quiz contains no questions")
	ErrTopicAccessDenied  = errors.New("access denied to custom topic")
	ErrQuizAccessDenied   = errors.New("access denied to custom quiz")
	ErrDuplicateTopicName = errors.New("topic name already exists for this user")
)

// ===== CHAT ERRORS =====

var (
	ErrSessionNotFound      = errors.New("chat session not found")
	ErrMessageNotFound      = errors.New("chat message not found")
	ErrSessionAccessDenied  = errors.New("access denied to chat session")
	ErrMessageNotCompleted  = errors.New("message is still streaming")
	ErrFeedbackNotPermitted = errors.New("feedback is only allowed on model messages")
	ErrSpeechNotPermitted   = errors.New("speech is only available for model replies")
)

// ===== PLANNER ERRORS =====

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskAccessDenied = errors.New("access denied to task")
)

// ===== MEDIA ERRORS =====

var (
	ErrImageNotFound      = errors.New("image not found")
	ErrVideoJobNotFound   = errors.New("video job not found")
	ErrImageAccessDenied  = errors.New("access denied to image")
	ErrVideoAccessDenied  = errors.New("access denied to video job")
	ErrHistoryEvictFailed = errors.New("could not make room in media history")
)

// ===== PROVIDER ERRORS =====

var (
	ErrProviderUnavailable     = errors.New("model provider unavailable")
	ErrProviderResponseInvalid = errors.New("model provider returned an invalid response")
)

// ===== LIVE SESSION ERRORS =====

var (
	ErrLiveTicketInvalid = errors.New("live session ticket is invalid or expired")
	ErrLiveUnavailable   = errors.New("live sessions are not configured")
)

// BusinessRuleError carries a violated domain rule with enough context for
// the client to explain what went wrong.
type BusinessRuleError struct {
	Message string
	Rule    string
	Context map[string]interface{}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation [%s]: %s", e.Rule, e.Message)
}

// NewBusinessRuleError creates a business rule error with context
func NewBusinessRuleError(message, rule string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Message: message,
		Rule:    rule,
		Context: context,
	}
}

// PermissionError describes a denied action on a specific resource.
type PermissionError struct {
	Resource string
	Action   string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s on %s (%s)", e.Action, e.Resource, e.Reason)
}

// NewPermissionError creates a permission error
func NewPermissionError(resource, action, reason string) *PermissionError {
	return &PermissionError{
		Resource: resource,
		Action:   action,
		Reason:   reason,
	}
}
