package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// SessionRepository persists finished ActivitySession rows.
type SessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSessionRepository(db *sql.DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// CreateSession stores a finished session. Storing the same session twice
// is a no-op.
func (r *SessionRepository) CreateSession(ctx context.Context, s *models.ActivitySession) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session_id is required")
	}

	achievements, err := json.Marshal(nonNilAchievements(s.Achievements))
	if err != nil {
		return fmt.Errorf("failed to marshal achievements: %w", err)
	}
	feedback, err := json.Marshal(nonNilFeedback(s.FeedbackItems))
	if err != nil {
		return fmt.Errorf("failed to marshal feedback items: %w", err)
	}

	var endTime sql.NullTime
	if s.EndTime != nil {
		endTime = sql.NullTime{Time: *s.EndTime, Valid: true}
	}

	query := `
		INSERT INTO activity_sessions (
			session_id, user_id, activity_type, start_time, end_time,
			duration_sec, points, form_score, achievements, feedback_items
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.UserID,
		s.ActivityType,
		s.StartTime,
		endTime,
		s.Duration,
		s.Points,
		s.FormScore,
		string(achievements),
		string(feedback),
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", s.ID, err)
	}

	r.logger.Debug("Session stored",
		zap.String("session_id", s.ID),
		zap.String("user_id", s.UserID),
		zap.Int("points", s.Points),
	)
	return nil
}

// ListSessions returns the newest sessions of userID first.
func (r *SessionRepository) ListSessions(ctx context.Context, userID string, limit int) ([]*models.ActivitySession, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT session_id, user_id, activity_type, start_time, end_time,
		       duration_sec, points, form_score, achievements, feedback_items
		FROM activity_sessions
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ActivitySession
	for rows.Next() {
		var s models.ActivitySession
		var endTime sql.NullTime
		var achievements, feedback []byte

		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.ActivityType,
			&s.StartTime,
			&endTime,
			&s.Duration,
			&s.Points,
			&s.FormScore,
			&achievements,
			&feedback,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if endTime.Valid {
			end := endTime.Time
			s.EndTime = &end
		}
		s.Achievements = []models.Achievement{}
		if len(achievements) > 0 {
			if err := json.Unmarshal(achievements, &s.Achievements); err != nil {
				return nil, fmt.Errorf("failed to unmarshal achievements of %s: %w", s.ID, err)
			}
		}
		s.FeedbackItems = []models.FeedbackItem{}
		if len(feedback) > 0 {
			if err := json.Unmarshal(feedback, &s.FeedbackItems); err != nil {
				return nil, fmt.Errorf("failed to unmarshal feedback items of %s: %w", s.ID, err)
			}
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

func nonNilAchievements(a []models.Achievement) []models.Achievement {
	if a == nil {
		return []models.Achievement{}
	}
	return a
}

func nonNilFeedback(f []models.FeedbackItem) []models.FeedbackItem {
	if f == nil {
		return []models.FeedbackItem{}
	}
	return f
}
