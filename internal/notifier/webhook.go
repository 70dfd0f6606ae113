package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/i18n"
	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// Localizer renders the alert message text.
type Localizer interface {
	T(lang, id string, data map[string]interface{}) string
	AlertType(lang, alertType string) string
}

// NotifyRequest is the body posted to the dispatcher.
type NotifyRequest struct {
	Alert    *models.EmergencyAlert    `json:"alert"`
	Contacts []models.EmergencyContact `json:"contacts"`
	Message  string                    `json:"message"`
	Language string                    `json:"language"`
}

// NotifyResponse is the dispatcher reply. Status 0 is success.
type NotifyResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Data   struct {
		Notified []string `json:"notified"`
	} `json:"data"`
}

// WebhookNotifier hands alerts to an external dispatcher that contacts
// people by SMS or call. Delivery itself is the dispatcher's concern.
type WebhookNotifier struct {
	httpClient *resty.Client
	localizer  Localizer
	lang       string
	logger     *zap.Logger
}

// NewWebhookNotifier creates a notifier posting to baseURL + "/notify".
func NewWebhookNotifier(baseURL string, timeout time.Duration, localizer Localizer, lang string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		localizer:  localizer,
		lang:       lang,
		logger:     logger,
	}
}

// Notify posts alert and contacts and returns the ids of the contacts the
// dispatcher accepted. Nothing is sent when contacts is empty.
func (n *WebhookNotifier) Notify(ctx context.Context, alert *models.EmergencyAlert, contacts []models.EmergencyContact) ([]string, error) {
	if alert == nil || len(contacts) == 0 {
		return nil, nil
	}

	request := NotifyRequest{
		Alert:    alert,
		Contacts: contacts,
		Message:  n.message(alert),
		Language: n.lang,
	}

	n.logger.Info("Dispatching emergency notification",
		zap.String("alert_id", alert.ID),
		zap.Int("contact_count", len(contacts)),
	)

	var response NotifyResponse
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/notify")
	if err != nil {
		return nil, fmt.Errorf("failed to call notification dispatcher: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("notification dispatcher returned HTTP %d", resp.StatusCode())
	}
	if response.Status != 0 {
		return nil, fmt.Errorf("notification dispatcher error: %s (status: %d)", response.Msg, response.Status)
	}

	n.logger.Info("Emergency notification accepted",
		zap.String("alert_id", alert.ID),
		zap.Strings("notified", response.Data.Notified),
	)
	return response.Data.Notified, nil
}

func (n *WebhookNotifier) message(alert *models.EmergencyAlert) string {
	if n.localizer == nil {
		return fmt.Sprintf("%s may need help: %s alert at %s", alert.UserID, alert.Type, alert.Timestamp.Format(time.RFC3339))
	}
	return n.localizer.T(n.lang, i18n.MsgEmergencyAlert, map[string]interface{}{
		"Name": alert.UserID,
		"Type": n.localizer.AlertType(n.lang, string(alert.Type)),
		"Time": alert.Timestamp.Format("15:04"),
	})
}
