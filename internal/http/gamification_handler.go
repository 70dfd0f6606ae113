package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/gamification"
	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// Ledger is the part of gamification.Ledger the API drives.
type Ledger interface {
	StartActivitySession(activityType string) *models.ActivitySession
	EndActivitySession() (*models.ActivitySession, bool)
	AddPoints(points int, reason string)
	AwardAchievement(id gamification.AchievementID) bool
	GetLeaderboardPositions() map[string]int
	Progress() models.Progress
	CurrentSession() *models.ActivitySession
	CurrentUser() *models.User
}

// UserSettings switches the current user.
type UserSettings interface {
	SetUser(ctx context.Context, user *models.User) error
}

type GamificationHandler struct {
	ledger Ledger
	users  UserSettings
	logger *zap.Logger
}

func NewGamificationHandler(ledger Ledger, users UserSettings, logger *zap.Logger) *GamificationHandler {
	return &GamificationHandler{ledger: ledger, users: users, logger: logger}
}

// Summary is the GET /api/v1/gamification payload.
type Summary struct {
	User           *models.User            `json:"user"`
	Points         int                     `json:"points"`
	PersonalBests  map[string]int          `json:"personalBests"`
	Achievements   []models.Achievement    `json:"achievements"`
	CurrentSession *models.ActivitySession `json:"currentSession"`
	Positions      map[string]int          `json:"leaderboardPositions"`
}

// EndSessionResponse reports the finalized session, if one was open.
type EndSessionResponse struct {
	Ended   bool                    `json:"ended"`
	Session *models.ActivitySession `json:"session"`
}

type startSessionRequest struct {
	ActivityType string `json:"activityType"`
}

type addPointsRequest struct {
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

type awardRequest struct {
	ID string `json:"id"`
}

func (h *GamificationHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	p := h.ledger.Progress()
	writeJSON(w, http.StatusOK, Ok(Summary{
		User:           h.ledger.CurrentUser(),
		Points:         p.Points,
		PersonalBests:  p.PersonalBests,
		Achievements:   p.Achievements,
		CurrentSession: h.ledger.CurrentSession(),
		Positions:      h.ledger.GetLeaderboardPositions(),
	}))
}

func (h *GamificationHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ActivityType == "" {
		writeJSON(w, http.StatusOK, Fail("activityType is required"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.ledger.StartActivitySession(req.ActivityType)))
}

func (h *GamificationHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ledger.EndActivitySession()
	writeJSON(w, http.StatusOK, Ok(EndSessionResponse{Ended: ok, Session: s}))
}

func (h *GamificationHandler) AddPoints(w http.ResponseWriter, r *http.Request) {
	var req addPointsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.ledger.AddPoints(req.Points, req.Reason)
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"points":         h.ledger.Progress().Points,
		"currentSession": h.ledger.CurrentSession(),
	}))
}

func (h *GamificationHandler) AwardAchievement(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	awarded := h.ledger.AwardAchievement(gamification.AchievementID(req.ID))
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"awarded": awarded,
		"points":  h.ledger.Progress().Points,
	}))
}

func (h *GamificationHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.ledger.GetLeaderboardPositions()))
}

func (h *GamificationHandler) SetUser(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if !decodeBody(w, r, &user) {
		return
	}
	var u *models.User
	if user.ID != "" {
		u = &user
	}
	if err := h.users.SetUser(r.Context(), u); err != nil {
		h.logger.Error("Failed to set user", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to set user"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.ledger.CurrentUser()))
}
