package models

import (
	"time"
)

// FeedbackType classifies a FeedbackItem.
type FeedbackType string

const (
	FeedbackTypeForm   FeedbackType = "form"
	FeedbackTypeEffort FeedbackType = "effort"
	FeedbackTypeSafety FeedbackType = "safety"
)

// FeedbackSeverity is the display severity of a FeedbackItem.
type FeedbackSeverity string

const (
	SeverityInfo     FeedbackSeverity = "info"
	SeverityWarning  FeedbackSeverity = "warning"
	SeverityCritical FeedbackSeverity = "critical"
)

// FeedbackItem is one entry of a session's point-award audit log.
type FeedbackItem struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Type      FeedbackType     `json:"type"`
	Message   string           `json:"message"`
	Severity  FeedbackSeverity `json:"severity"`
}

// ActivitySession tracks point accrual for one bounded interval of activity
// (table activity_sessions).
type ActivitySession struct {
	ID            string         `json:"id" db:"session_id"`
	UserID        string         `json:"userId" db:"user_id"`
	ActivityType  string         `json:"activityType" db:"activity_type"`
	StartTime     time.Time      `json:"startTime" db:"start_time"`
	EndTime       *time.Time     `json:"endTime,omitempty" db:"end_time"`
	Duration      int            `json:"duration" db:"duration_sec"` // seconds
	Points        int            `json:"points" db:"points"`
	FormScore     int            `json:"formScore" db:"form_score"`
	Achievements  []Achievement  `json:"achievements" db:"achievements"`     // JSONB
	FeedbackItems []FeedbackItem `json:"feedbackItems" db:"feedback_items"` // JSONB
}

// Clone returns a deep copy.
func (s *ActivitySession) Clone() *ActivitySession {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	c.Achievements = append([]Achievement{}, s.Achievements...)
	c.FeedbackItems = append([]FeedbackItem{}, s.FeedbackItems...)
	return &c
}
