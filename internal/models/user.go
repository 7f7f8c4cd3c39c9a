package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UserRole string
type Role = UserRole // Alias for compatibility

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// ProgressSnapshot is one point of the time-ordered progress series shown
// on the profile chart.
type ProgressSnapshot struct {
	Date   time.Time `json:"date"`
	Points int       `json:"points"`
}

type User struct {
	ID       string   `json:"id" gorm:"primaryKey;size:255"`
	FullName string   `json:"full_name" gorm:"not null;size:100"`
	Email    string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Role     UserRole `json:"role" gorm:"-"`

	// Profile info
	AvatarURL *string `json:"avatar_url" gorm:"size:500"`
	ClassName *string `json:"class_name" gorm:"size:100"`

	// Gamification state. Total points only ever grow except through an
	// explicit reset; rank is derived from points, badges only ever grow.
	Rank        Rank           `json:"rank" gorm:"not null;default:Bronze;size:20"`
	TotalPoints int            `json:"total_points" gorm:"not null;default:0"`
	Badges      datatypes.JSON `json:"badges" gorm:"type:jsonb"`
	Progress    datatypes.JSON `json:"progress" gorm:"type:jsonb"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

// BadgeSet decodes the earned badge names. A null column decodes to an
// empty set, never an error.
func (u *User) BadgeSet() []string {
	if len(u.Badges) == 0 {
		return []string{}
	}
	var badges []string
	if err := json.Unmarshal(u.Badges, &badges); err != nil {
		return []string{}
	}
	return badges
}

// SetBadges encodes the badge name set back into the JSON column.
func (u *User) SetBadges(badges []string) error {
	data, err := json.Marshal(badges)
	if err != nil {
		return err
	}
	u.Badges = data
	return nil
}

// HasBadge reports whether the badge name is already in the earned set.
func (u *User) HasBadge(name string) bool {
	for _, b := range u.BadgeSet() {
		if b == name {
			return true
		}
	}
	return false
}

// ProgressSeries decodes the time-ordered progress snapshots.
func (u *User) ProgressSeries() []ProgressSnapshot {
	if len(u.Progress) == 0 {
		return []ProgressSnapshot{}
	}
	var series []ProgressSnapshot
	if err := json.Unmarshal(u.Progress, &series); err != nil {
		return []ProgressSnapshot{}
	}
	return series
}

// SetProgressSeries encodes the progress snapshots back into the JSON column.
func (u *User) SetProgressSeries(series []ProgressSnapshot) error {
	data, err := json.Marshal(series)
	if err != nil {
		return err
	}
	u.Progress = data
	return nil
}
