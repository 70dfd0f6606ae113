package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

const (
	SessionsSheet = "Sessions"
	AlertsSheet   = "Alerts"
)

// SessionHeader is the header row of SessionsSheet.
var SessionHeader = []string{
	"Session ID",
	"Activity",
	"Start Time",
	"End Time",
	"Duration (s)",
	"Points",
	"Achievements",
	"Feedback Items",
}

// AlertHeader is the header row of AlertsSheet.
var AlertHeader = []string{
	"Alert ID",
	"Type",
	"Status",
	"Triggered At",
	"Heart Rate",
	"Notified Contacts",
}

const timeLayout = "2006-01-02 15:04:05"

// GenerateSessionHistory renders sessions, and alerts when given, as an
// .xlsx workbook with one row per record.
func GenerateSessionHistory(sessions []*models.ActivitySession, alerts []*models.EmergencyAlert) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SessionsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	rows := make([][]interface{}, 0, len(sessions))
	for _, s := range sessions {
		if s == nil {
			continue
		}
		rows = append(rows, sessionRow(s))
	}
	if err := writeSheet(f, SessionsSheet, SessionHeader, rows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	if len(alerts) > 0 {
		if _, err := f.NewSheet(AlertsSheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet: %w", err)
		}
		rows := make([][]interface{}, 0, len(alerts))
		for _, a := range alerts {
			if a == nil {
				continue
			}
			rows = append(rows, alertRow(a))
		}
		if err := writeSheet(f, AlertsSheet, AlertHeader, rows, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}, headerStyle int) error {
	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 20); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

func sessionRow(s *models.ActivitySession) []interface{} {
	names := make([]string, 0, len(s.Achievements))
	for _, a := range s.Achievements {
		names = append(names, a.Name)
	}
	return []interface{}{
		s.ID,
		s.ActivityType,
		formatTime(&s.StartTime),
		formatTime(s.EndTime),
		s.Duration,
		s.Points,
		strings.Join(names, ", "),
		len(s.FeedbackItems),
	}
}

func alertRow(a *models.EmergencyAlert) []interface{} {
	var hr interface{} = ""
	if a.HeartRate != nil {
		hr = *a.HeartRate
	}
	return []interface{}{
		a.ID,
		string(a.Type),
		string(a.Status),
		formatTime(&a.Timestamp),
		hr,
		strings.Join(a.NotifiedContacts, ", "),
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
