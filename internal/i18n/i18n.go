package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Message ids.
const (
	MsgPointsEarned   = "points_earned"
	MsgEmergencyAlert = "emergency_alert"
)

//go:embed locales/*.json
var locales embed.FS

// Translator renders messages from the embedded locale files.
type Translator struct {
	bundle      *i18n.Bundle
	defaultLang string
	logger      *zap.Logger
}

// NewTranslator loads every embedded locale with defaultLang as fallback.
func NewTranslator(defaultLang string, logger *zap.Logger) (*Translator, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLang, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to list locales: %w", err)
	}
	for _, e := range entries {
		name := path.Join("locales", e.Name())
		buf, err := locales.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if _, err := bundle.ParseMessageFileBytes(buf, name); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	}

	return &Translator{bundle: bundle, defaultLang: defaultLang, logger: logger}, nil
}

// T translates id into lang. Missing messages fall back to the default
// language and then to id itself.
func (t *Translator) T(lang, id string, data map[string]interface{}) string {
	localizer := i18n.NewLocalizer(t.bundle, lang, t.defaultLang)

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		t.logger.Debug("Translation missing",
			zap.String("lang", lang),
			zap.String("message_id", id),
			zap.Error(err),
		)
		return id
	}
	return msg
}

// Formatter returns the ledger feedback formatter for lang.
func (t *Translator) Formatter(lang string) LangFormatter {
	return LangFormatter{t: t, lang: lang}
}

// LangFormatter renders ledger feedback in a fixed language.
type LangFormatter struct {
	t    *Translator
	lang string
}

func (f LangFormatter) PointsEarned(points int, reason string) string {
	return f.t.T(f.lang, MsgPointsEarned, map[string]interface{}{
		"Points": points,
		"Reason": reason,
	})
}

// AlertType returns the display name of an alert type, or the raw type.
func (t *Translator) AlertType(lang, alertType string) string {
	id := "alert_type_" + alertType
	if s := t.T(lang, id, nil); s != id {
		return s
	}
	return alertType
}
