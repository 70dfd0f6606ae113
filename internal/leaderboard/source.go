package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// Source supplies leaderboard snapshots relevant to user.
type Source interface {
	Fetch(ctx context.Context, user models.User) ([]models.Leaderboard, error)
}

// Client reads snapshots from the leaderboard collaborator over HTTP.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

type leaderboardsResponse struct {
	Leaderboards []models.Leaderboard `json:"leaderboards"`
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{httpClient: client, logger: logger}
}

// Fetch GETs /leaderboards?userId=<id>.
func (c *Client) Fetch(ctx context.Context, user models.User) ([]models.Leaderboard, error) {
	var response leaderboardsResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("userId", user.ID).
		SetResult(&response).
		Get("/leaderboards")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboards: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("leaderboard service returned HTTP %d", resp.StatusCode())
	}

	c.logger.Debug("Fetched leaderboards",
		zap.String("user_id", user.ID),
		zap.Int("board_count", len(response.Leaderboards)),
	)
	return response.Leaderboards, nil
}

// MockSource serves fixed development boards: "daily" with the user at
// rank 1 and "weekly" with the user at rank 3, ten entries each.
type MockSource struct{}

func (MockSource) Fetch(_ context.Context, user models.User) ([]models.Leaderboard, error) {
	name := user.DisplayName
	if name == "" {
		name = "You"
	}
	id := user.ID
	if id == "" {
		id = "user-1"
	}

	daily := models.Leaderboard{ID: "daily", Name: "Daily Challenge", Period: models.PeriodDaily}
	weekly := models.Leaderboard{ID: "weekly", Name: "Weekly Stars", Period: models.PeriodWeekly}
	for i := 0; i < 10; i++ {
		daily.Entries = append(daily.Entries, mockEntry(i, 0, 1, 100, 8, id, name))
		weekly.Entries = append(weekly.Entries, mockEntry(i, 2, 10, 500, 45, id, name))
	}
	return []models.Leaderboard{daily, weekly}, nil
}

func mockEntry(index, userIndex, offset, top, step int, userID, userName string) models.LeaderboardEntry {
	n := index + offset
	e := models.LeaderboardEntry{
		UserID:      fmt.Sprintf("user-%d", n),
		DisplayName: fmt.Sprintf("Player %d", n),
		AvatarURL:   fmt.Sprintf("https://randomuser.me/api/portraits/children/%d.jpg", n),
		Points:      top - index*step,
		Rank:        index + 1,
	}
	if index == userIndex {
		e.UserID = userID
		e.DisplayName = userName
	}
	return e
}
