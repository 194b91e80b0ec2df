// Package voice holds the SaluteSpeech voice catalogue and the rules that
// keep a voice/language pair valid before it reaches the synthesis endpoint.
package voice

import "sort"

const (
	LangRussian = "ru-RU"
	LangEnglish = "en-US"

	DefaultLanguage = LangRussian
	DefaultVoice    = "Nec"

	// EnglishVoice is the only voice that speaks en-US.
	EnglishVoice = "Kin"
)

// Voice is a catalogue entry.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

var catalogue = []Voice{
	{ID: "Nec", Name: "Наталья", Language: LangRussian},
	{ID: "Bys", Name: "Борис", Language: LangRussian},
	{ID: "May", Name: "Марфа", Language: LangRussian},
	{ID: "Tur", Name: "Тарас", Language: LangRussian},
	{ID: "Ost", Name: "Александра", Language: LangRussian},
	{ID: "Pon", Name: "Сергей", Language: LangRussian},
	{ID: EnglishVoice, Name: "Kira", Language: LangEnglish},
}

// Languages returns the supported locales.
func Languages() []string {
	return []string{LangRussian, LangEnglish}
}

// SupportedLanguage reports whether lang is a known locale.
func SupportedLanguage(lang string) bool {
	return lang == LangRussian || lang == LangEnglish
}

// All returns every known voice.
func All() []Voice {
	return append([]Voice(nil), catalogue...)
}

// ForLanguage lists the voices that speak lang, or nil for an unknown locale.
func ForLanguage(lang string) []Voice {
	var out []Voice
	for _, v := range catalogue {
		if v.Language == lang {
			out = append(out, v)
		}
	}
	return out
}

// Known reports whether id is in the catalogue.
func Known(id string) bool {
	_, ok := Lookup(id)
	return ok
}

// Lookup returns the catalogue entry for id.
func Lookup(id string) (Voice, bool) {
	for _, v := range catalogue {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

// IDs returns voice identifiers sorted alphabetically.
func IDs() []string {
	ids := make([]string, 0, len(catalogue))
	for _, v := range catalogue {
		ids = append(ids, v.ID)
	}
	sort.Strings(ids)
	return ids
}

// Defaults are the configured fallbacks used when a request leaves the
// language or the voice empty.
type Defaults struct {
	Language string
	Voice    string
}

// Resolve picks the voice to send for a request. Empty arguments fall back to
// the defaults. English always uses EnglishVoice; Russian never does and
// falls back to DefaultVoice instead.
func Resolve(lang, voiceID string, d Defaults) string {
	if voiceID == "" {
		voiceID = d.Voice
	}
	if lang == "" {
		lang = d.Language
	}

	switch {
	case lang == LangEnglish:
		voiceID = EnglishVoice
	case lang == LangRussian && voiceID == EnglishVoice:
		voiceID = DefaultVoice
	}
	return voiceID
}
