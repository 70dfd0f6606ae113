package models

import (
	"time"
)

// AchievementType selects the badge artwork.
type AchievementType string

const (
	AchievementTypeStar      AchievementType = "star"
	AchievementTypeCheckmark AchievementType = "checkmark"
	AchievementTypeFirstAid  AchievementType = "first-aid"
)

// Achievement is a one-time bonus with a fixed point value.
type Achievement struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	IconURL       string          `json:"iconUrl"`
	PointsAwarded int             `json:"pointsAwarded"`
	DateEarned    time.Time       `json:"dateEarned"`
	Type          AchievementType `json:"type,omitempty"`
}

// LeaderboardPeriod is the window a board aggregates over.
type LeaderboardPeriod string

const (
	PeriodDaily   LeaderboardPeriod = "daily"
	PeriodWeekly  LeaderboardPeriod = "weekly"
	PeriodMonthly LeaderboardPeriod = "monthly"
	PeriodAllTime LeaderboardPeriod = "allTime"
)

// Leaderboard is a read-only snapshot; Entries are ordered by Rank ascending.
type Leaderboard struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Period  LeaderboardPeriod  `json:"period"`
	Entries []LeaderboardEntry `json:"entries"`
}

// LeaderboardEntry is one row of a Leaderboard; rank 1 is best.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Points      int    `json:"points"`
	Rank        int    `json:"rank"`
}

// User is the identity supplied by the auth collaborator.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// BiometricReading is a wearable sample received over MQTT.
type BiometricReading struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
	HeartRate *int      `json:"heartRate,omitempty"`
	Steps     *int      `json:"steps,omitempty"`
	Calories  *int      `json:"calories,omitempty"`
	Activity  string    `json:"activity,omitempty"`
}

// Progress is the persisted part of a user's ledger totals.
type Progress struct {
	UserID        string         `json:"userId"`
	Points        int            `json:"points"`
	PersonalBests map[string]int `json:"personalBests"`
	Achievements  []Achievement  `json:"achievements"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}
