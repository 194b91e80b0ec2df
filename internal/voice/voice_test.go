package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	defaults := Defaults{Language: LangRussian, Voice: "Nec"}

	tests := []struct {
		name  string
		lang  string
		voice string
		want  string
	}{
		{"english forces kira", LangEnglish, "Bys", EnglishVoice},
		{"english with empty voice", LangEnglish, "", EnglishVoice},
		{"russian with kira falls back", LangRussian, EnglishVoice, DefaultVoice},
		{"russian keeps requested", LangRussian, "Tur", "Tur"},
		{"empty falls to defaults", "", "", "Nec"},
		{"empty language uses default language", "", EnglishVoice, DefaultVoice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.lang, tt.voice, defaults))
		})
	}
}

func TestResolveEnglishDefaults(t *testing.T) {
	got := Resolve("", "May", Defaults{Language: LangEnglish, Voice: "Nec"})
	assert.Equal(t, EnglishVoice, got)
}

func TestForLanguage(t *testing.T) {
	ru := ForLanguage(LangRussian)
	assert.Len(t, ru, 6)
	for _, v := range ru {
		assert.NotEqual(t, EnglishVoice, v.ID)
	}

	en := ForLanguage(LangEnglish)
	if assert.Len(t, en, 1) {
		assert.Equal(t, EnglishVoice, en[0].ID)
	}

	assert.Nil(t, ForLanguage("de-DE"))
}

func TestCatalogue(t *testing.T) {
	assert.True(t, Known("Pon"))
	assert.False(t, Known("Xyz"))
	assert.True(t, SupportedLanguage(LangEnglish))
	assert.False(t, SupportedLanguage("fr-FR"))
	assert.Equal(t, []string{"Bys", "Kin", "May", "Nec", "Ost", "Pon", "Tur"}, IDs())

	v, ok := Lookup("Ost")
	assert.True(t, ok)
	assert.Equal(t, "Александра", v.Name)
}
