package gamification

import (
	"time"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// AchievementID is a key of the fixed achievement catalog.
type AchievementID string

const (
	AchievementFirstSession AchievementID = "first-session"
	AchievementPerfectForm  AchievementID = "perfect-form"
	AchievementStreak3      AchievementID = "streak-3"
)

type catalogEntry struct {
	id          AchievementID
	name        string
	description string
	iconURL     string
	points      int
	kind        models.AchievementType
}

// catalog is closed: achievements are not user-extensible.
var catalog = [...]catalogEntry{
	{
		id:          AchievementFirstSession,
		name:        "First Steps",
		description: "Completed your first activity session",
		iconURL:     "/assets/achievements/star-achievement.svg",
		points:      50,
		kind:        models.AchievementTypeStar,
	},
	{
		id:          AchievementPerfectForm,
		name:        "Perfect Form",
		description: "Achieved perfect form during an exercise",
		iconURL:     "/assets/achievements/checkmark-achievement.svg",
		points:      100,
		kind:        models.AchievementTypeCheckmark,
	},
	{
		id:          AchievementStreak3,
		name:        "On Fire",
		description: "Completed activities 3 days in a row",
		iconURL:     "/assets/achievements/first-aid-achievement.svg",
		points:      150,
		kind:        models.AchievementTypeFirstAid,
	},
}

// LookupAchievement returns the catalog achievement for id stamped with earned.
func LookupAchievement(id AchievementID, earned time.Time) (models.Achievement, bool) {
	for _, e := range catalog {
		if e.id == id {
			return e.achievement(earned), true
		}
	}
	return models.Achievement{}, false
}

// Catalog lists every achievement in catalog order with a zero DateEarned.
func Catalog() []models.Achievement {
	out := make([]models.Achievement, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, e.achievement(time.Time{}))
	}
	return out
}

func (e catalogEntry) achievement(earned time.Time) models.Achievement {
	return models.Achievement{
		ID:            string(e.id),
		Name:          e.name,
		Description:   e.description,
		IconURL:       e.iconURL,
		PointsAwarded: e.points,
		DateEarned:    earned,
		Type:          e.kind,
	}
}
