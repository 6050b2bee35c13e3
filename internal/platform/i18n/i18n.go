// Package i18n resolves client languages and renders catalog messages.
package i18n

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/louisbranch/taskboard/internal/platform/i18n/catalog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	xcatalog "golang.org/x/text/message/catalog"
)

// LangParam is the query parameter used to select a language.
const LangParam = "lang"

// Localizer matches client language preferences against the loaded
// catalogs and renders messages in the chosen language.
type Localizer struct {
	tags    []language.Tag
	matcher language.Matcher
	cat     *xcatalog.Builder
}

// New builds a Localizer over bundle. The first locale of the bundle is the
// default language.
func New(bundle *catalog.Bundle) (*Localizer, error) {
	if bundle == nil {
		return nil, fmt.Errorf("catalog bundle is required")
	}
	builder, err := bundle.Builder()
	if err != nil {
		return nil, err
	}
	locales := bundle.Locales()
	tags := make([]language.Tag, 0, len(locales))
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		tags = append(tags, tag)
	}
	return &Localizer{
		tags:    tags,
		matcher: language.NewMatcher(tags),
		cat:     builder,
	}, nil
}

// NewEmbedded builds a Localizer over the catalogs compiled into the binary.
func NewEmbedded() (*Localizer, error) {
	bundle, err := catalog.LoadEmbedded()
	if err != nil {
		return nil, err
	}
	return New(bundle)
}

// DefaultTag returns the fallback language.
func (l *Localizer) DefaultTag() language.Tag {
	if l == nil || len(l.tags) == 0 {
		return language.MustParse(catalog.BaseLocale)
	}
	return l.tags[0]
}

// MatchTags returns the supported language closest to the preferences.
func (l *Localizer) MatchTags(preferred []language.Tag) language.Tag {
	if l == nil || len(preferred) == 0 {
		return l.DefaultTag()
	}
	_, idx, confidence := l.matcher.Match(preferred...)
	if confidence == language.No {
		return l.DefaultTag()
	}
	return l.tags[idx]
}

// ResolveTag picks the language for a request from the lang query
// parameter. Accept-Language is ignored so that clients which do not opt in
// always receive the default messages.
func (l *Localizer) ResolveTag(r *http.Request) language.Tag {
	if r == nil {
		return l.DefaultTag()
	}
	if value := strings.TrimSpace(r.URL.Query().Get(LangParam)); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return l.MatchTags([]language.Tag{tag})
		}
	}
	return l.DefaultTag()
}

// Translate renders key in tag, or fallback when no catalog has the key.
func (l *Localizer) Translate(tag language.Tag, key string, fallback string) string {
	if l == nil || strings.TrimSpace(key) == "" {
		return fallback
	}
	return message.NewPrinter(tag, message.Catalog(l.cat)).Sprintf(message.Key(key, fallback))
}
