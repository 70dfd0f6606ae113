package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/emergency"
	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// EmergencySystem is the part of emergency.System the API drives.
type EmergencySystem interface {
	Snapshot() emergency.Snapshot
	Trigger(t models.AlertType) bool
	Cancel() *models.EmergencyAlert
	Resolve() *models.EmergencyAlert
	Contacts() []models.EmergencyContact
}

// ContactSettings stores the emergency contact list.
type ContactSettings interface {
	UpdateContacts(ctx context.Context, contacts []models.EmergencyContact) error
}

type EmergencyHandler struct {
	system   EmergencySystem
	settings ContactSettings
	logger   *zap.Logger
}

func NewEmergencyHandler(system EmergencySystem, settings ContactSettings, logger *zap.Logger) *EmergencyHandler {
	return &EmergencyHandler{system: system, settings: settings, logger: logger}
}

type triggerRequest struct {
	Type models.AlertType `json:"type"`
}

// TriggerResponse reports whether a countdown was started.
type TriggerResponse struct {
	Accepted bool               `json:"accepted"`
	State    emergency.Snapshot `json:"state"`
}

// AlertResponse carries the alert closed by cancel or resolve, if any.
type AlertResponse struct {
	Alert *models.EmergencyAlert `json:"alert"`
	State emergency.Snapshot     `json:"state"`
}

func (h *EmergencyHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.system.Snapshot()))
}

func (h *EmergencyHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = models.AlertTypeUserInitiated
	}
	if !req.Type.Valid() {
		writeJSON(w, http.StatusOK, Failf("unknown alert type %q", req.Type))
		return
	}

	accepted := h.system.Trigger(req.Type)
	writeJSON(w, http.StatusOK, Ok(TriggerResponse{Accepted: accepted, State: h.system.Snapshot()}))
}

func (h *EmergencyHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	alert := h.system.Cancel()
	writeJSON(w, http.StatusOK, Ok(AlertResponse{Alert: alert, State: h.system.Snapshot()}))
}

func (h *EmergencyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	alert := h.system.Resolve()
	writeJSON(w, http.StatusOK, Ok(AlertResponse{Alert: alert, State: h.system.Snapshot()}))
}

func (h *EmergencyHandler) GetContacts(w http.ResponseWriter, r *http.Request) {
	contacts := h.system.Contacts()
	if contacts == nil {
		contacts = []models.EmergencyContact{}
	}
	writeJSON(w, http.StatusOK, Ok(contacts))
}

func (h *EmergencyHandler) UpdateContacts(w http.ResponseWriter, r *http.Request) {
	var contacts []models.EmergencyContact
	if !decodeBody(w, r, &contacts) {
		return
	}
	for _, c := range contacts {
		if c.ID == "" || c.Phone == "" {
			writeJSON(w, http.StatusOK, Fail("contact id and phone are required"))
			return
		}
	}

	if err := h.settings.UpdateContacts(r.Context(), contacts); err != nil {
		h.logger.Error("Failed to update contacts", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to update contacts"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.system.Contacts()))
}
