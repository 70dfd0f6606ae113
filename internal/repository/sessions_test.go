package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

func setupMockSessionDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SessionRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return db, mock, NewSessionRepository(db, zap.NewNop())
}

var sessionColumns = []string{
	"session_id", "user_id", "activity_type", "start_time", "end_time",
	"duration_sec", "points", "form_score", "achievements", "feedback_items",
}

func TestCreateSession_Success(t *testing.T) {
	db, mock, repo := setupMockSessionDB(t)
	defer db.Close()

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(95 * time.Second)
	s := &models.ActivitySession{
		ID:           "s-1",
		UserID:       "kid-1",
		ActivityType: "freestyle",
		StartTime:    start,
		EndTime:      &end,
		Duration:     95,
		Points:       15,
	}

	mock.ExpectExec(`INSERT INTO activity_sessions`).
		WithArgs("s-1", "kid-1", "freestyle", start, end, 95, 15, 0, "[]", "[]").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateSession(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSession_RequiresID(t *testing.T) {
	db, _, repo := setupMockSessionDB(t)
	defer db.Close()

	assert.Error(t, repo.CreateSession(context.Background(), &models.ActivitySession{}))
}

func TestListSessions(t *testing.T) {
	db, mock, repo := setupMockSessionDB(t)
	defer db.Close()

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	rows := sqlmock.NewRows(sessionColumns).
		AddRow("s-2", "kid-1", "dance", start, end, 60, 40, 0,
			`[{"id":"first-session","name":"First Steps","description":"","iconUrl":"","pointsAwarded":50,"dateEarned":"2024-05-01T09:00:30Z"}]`,
			`[{"id":"f-1","timestamp":"2024-05-01T09:00:10Z","type":"effort","message":"Earned 40 points for dance","severity":"info"}]`).
		AddRow("s-1", "kid-1", "boxing", start, nil, 0, 0, 0, "[]", nil)
	mock.ExpectQuery(`FROM activity_sessions`).WithArgs("kid-1", 10).WillReturnRows(rows)

	sessions, err := repo.ListSessions(context.Background(), "kid-1", 10)

	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s-2", sessions[0].ID)
	require.NotNil(t, sessions[0].EndTime)
	assert.Equal(t, end, *sessions[0].EndTime)
	require.Len(t, sessions[0].Achievements, 1)
	assert.Equal(t, 50, sessions[0].Achievements[0].PointsAwarded)
	require.Len(t, sessions[0].FeedbackItems, 1)
	assert.Equal(t, models.FeedbackTypeEffort, sessions[0].FeedbackItems[0].Type)

	assert.Nil(t, sessions[1].EndTime)
	assert.Empty(t, sessions[1].Achievements)
	assert.NotNil(t, sessions[1].FeedbackItems)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessions_BadJSON(t *testing.T) {
	db, mock, repo := setupMockSessionDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(sessionColumns).
		AddRow("s-1", "kid-1", "dance", time.Now(), nil, 0, 0, 0, "{oops", "[]")
	mock.ExpectQuery(`FROM activity_sessions`).WillReturnRows(rows)

	_, err := repo.ListSessions(context.Background(), "kid-1", 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "s-1")
}
