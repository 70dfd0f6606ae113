package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// AlertRepository persists EmergencyAlert rows.
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertAlert inserts the alert or updates its mutable columns. Once the
// stored status is final it no longer changes, so a late pending update
// cannot reopen a resolved alert. The notified contacts are always written.
func (r *AlertRepository) UpsertAlert(ctx context.Context, alert *models.EmergencyAlert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("alert_id is required")
	}

	var location []byte
	if alert.Location != nil {
		b, err := json.Marshal(alert.Location)
		if err != nil {
			return fmt.Errorf("failed to marshal location: %w", err)
		}
		location = b
	}

	var heartRate sql.NullInt64
	if alert.HeartRate != nil {
		heartRate = sql.NullInt64{Int64: int64(*alert.HeartRate), Valid: true}
	}

	notified := alert.NotifiedContacts
	if notified == nil {
		notified = []string{}
	}

	query := `
		INSERT INTO emergency_alerts (
			alert_id, user_id, triggered_at, alert_type, status,
			location, heart_rate, notified_contacts, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (alert_id) DO UPDATE SET
			status = CASE WHEN emergency_alerts.status = 'pending'
				THEN EXCLUDED.status ELSE emergency_alerts.status END,
			location = COALESCE(EXCLUDED.location, emergency_alerts.location),
			heart_rate = COALESCE(EXCLUDED.heart_rate, emergency_alerts.heart_rate),
			notified_contacts = EXCLUDED.notified_contacts,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.UserID,
		alert.Timestamp,
		string(alert.Type),
		string(alert.Status),
		nullJSON(location),
		heartRate,
		pq.Array(notified),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert alert %s: %w", alert.ID, err)
	}
	return nil
}

// GetAlert returns the alert with id, or ErrNotFound.
func (r *AlertRepository) GetAlert(ctx context.Context, id string) (*models.EmergencyAlert, error) {
	if id == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT alert_id, user_id, triggered_at, alert_type, status,
		       location, heart_rate, notified_contacts
		FROM emergency_alerts
		WHERE alert_id = $1
	`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return alert, nil
}

// ListAlerts returns the newest alerts of userID first.
func (r *AlertRepository) ListAlerts(ctx context.Context, userID string, limit int) ([]*models.EmergencyAlert, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT alert_id, user_id, triggered_at, alert_type, status,
		       location, heart_rate, notified_contacts
		FROM emergency_alerts
		WHERE user_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.EmergencyAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.EmergencyAlert, error) {
	var alert models.EmergencyAlert
	var alertType, status string
	var location []byte
	var heartRate sql.NullInt64
	var notified pq.StringArray

	if err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.Timestamp,
		&alertType,
		&status,
		&location,
		&heartRate,
		&notified,
	); err != nil {
		return nil, err
	}

	alert.Type = models.AlertType(alertType)
	alert.Status = models.AlertStatus(status)
	if len(location) > 0 {
		var loc models.Location
		if err := json.Unmarshal(location, &loc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal location: %w", err)
		}
		alert.Location = &loc
	}
	if heartRate.Valid {
		hr := int(heartRate.Int64)
		alert.HeartRate = &hr
	}
	alert.NotifiedContacts = []string(notified)
	if alert.NotifiedContacts == nil {
		alert.NotifiedContacts = []string{}
	}
	return &alert, nil
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
