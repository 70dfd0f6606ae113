package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
	"github.com/meiriv/kids-sports-safety-app/internal/report"
)

// History reads stored sessions and alerts of the current user.
type History interface {
	Sessions(ctx context.Context, limit int) ([]*models.ActivitySession, error)
	Alerts(ctx context.Context, limit int) ([]*models.EmergencyAlert, error)
}

type HistoryHandler struct {
	history History
	logger  *zap.Logger
}

func NewHistoryHandler(history History, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	sessions, err := h.history.Sessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to load session history", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to load session history"))
		return
	}
	if sessions == nil {
		sessions = []*models.ActivitySession{}
	}
	writeJSON(w, http.StatusOK, Ok(sessions))
}

func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 500)
	sessions, err := h.history.Sessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to load session history", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to load session history"))
		return
	}
	alerts, err := h.history.Alerts(r.Context(), limit)
	if err != nil {
		h.logger.Warn("Failed to load alert history, exporting sessions only", zap.Error(err))
		alerts = nil
	}

	data, err := report.GenerateSessionHistory(sessions, alerts)
	if err != nil {
		h.logger.Error("Failed to generate history workbook", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to generate export"))
		return
	}

	filename := fmt.Sprintf("session-history-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
