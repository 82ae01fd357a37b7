// Package i18n negotiates the caller's language and holds the translated
// strings the API returns.
package i18n

import (
	"context"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys.
const (
	keyCopyName     = "%s (Copy)"
	KeyPostRequired = "A POST request is required."
)

// Supported lists the languages with translations, default first.
var Supported = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
}

var matcher = language.NewMatcher(Supported)

var translations = map[string]map[language.Tag]string{
	keyCopyName: {
		language.German:  "%s (Kopie)",
		language.French:  "%s (Copie)",
		language.Spanish: "%s (Copia)",
	},
	KeyPostRequired: {
		language.German:  "Eine POST-Anfrage ist erforderlich.",
		language.French:  "Une requête POST est requise.",
		language.Spanish: "Se requiere una solicitud POST.",
	},
}

func init() {
	for key, byTag := range translations {
		for tag, msg := range byTag {
			if err := message.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
}

// Match returns the supported language that best fits an Accept-Language
// header. Malformed or empty headers yield English.
func Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Supported[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Supported[0]
	}
	return Supported[idx]
}

// Sprintf formats the translation of key for tag.
func Sprintf(tag language.Tag, key string, args ...any) string {
	return message.NewPrinter(tag).Sprintf(key, args...)
}

// CopyName appends the localized copy marker to name.
func CopyName(tag language.Tag, name string) string {
	return Sprintf(tag, keyCopyName, name)
}

type ctxKey struct{}

// WithLanguage stores tag in ctx.
func WithLanguage(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, ctxKey{}, tag)
}

// FromContext returns the language stored in ctx, or English.
func FromContext(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(ctxKey{}).(language.Tag); ok {
		return tag
	}
	return Supported[0]
}
