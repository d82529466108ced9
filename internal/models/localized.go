package models

import "errors"

// ErrEmptyLocalizedText is returned when a localized value is built
// without primary-language content.
var ErrEmptyLocalizedText = errors.New("localized text requires primary content")

// LocalizedText carries a bilingual value: the department's primary
// language plus an optional secondary (English) rendition. It is a plain
// value type, independent of how the two strings are stored.
type LocalizedText struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// NewLocalizedText validates that primary content is present. Secondary
// content falls back to the primary text when empty, matching how the
// department publishes untranslated material.
func NewLocalizedText(primary, secondary string) (LocalizedText, error) {
	if primary == "" {
		return LocalizedText{}, ErrEmptyLocalizedText
	}
	if secondary == "" {
		secondary = primary
	}
	return LocalizedText{Primary: primary, Secondary: secondary}, nil
}

// In returns the rendition for the requested locale, defaulting to the
// primary language.
func (t LocalizedText) In(locale string) string {
	if locale == "en" && t.Secondary != "" {
		return t.Secondary
	}
	return t.Primary
}
