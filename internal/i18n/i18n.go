// Package i18n provides the chat transport's message catalog.
// Messages live in embedded YAML files, one per language, and are rendered
// with go-i18n. Unknown message ids are returned as-is.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Localizer renders messages in one language
type Localizer struct {
	lang      string
	localizer *i18n.Localizer
}

// New loads the embedded locales and returns a localizer for lang.
// Missing messages fall back to English.
func New(lang string) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read locales: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", f.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, f.Name()); err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", f.Name(), err)
		}
	}

	return &Localizer{
		lang:      lang,
		localizer: i18n.NewLocalizer(bundle, lang, "en"),
	}, nil
}

// Lang returns the requested language
func (l *Localizer) Lang() string {
	return l.lang
}

// T translates a message by its ID
func (l *Localizer) T(messageID string) string {
	return l.Tf(messageID, nil)
}

// Tf translates a message by its ID, filling its template with data.
// A message missing from the requested language is rendered in English.
func (l *Localizer) Tf(messageID string, data map[string]any) string {
	msg, err := l.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil && msg == "" {
		return messageID
	}
	return msg
}
