package tts

import (
	"context"
	"fmt"

	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/speech"
	"github.com/loqalabs/salute-gateway/internal/voice"
)

// Synthesizer is the contract for producing audio. *gateway.Gateway is the
// production implementation.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, cred speech.Credential, voiceID string, rate speech.SampleRate, codec speech.Codec) speech.Result
}

// Params are the fully resolved synthesis settings for one request.
type Params struct {
	Language   string
	VoiceID    string
	SampleRate speech.SampleRate
	Codec      speech.Codec
}

// ResolveParams fills empty request fields from the configured defaults and
// applies the voice/language policy. rate 0 and an empty codec mean default.
func ResolveParams(defaults config.SpeechConfig, lang, voiceID string, rate int, codec string) (Params, error) {
	if lang == "" {
		lang = defaults.Language
	}
	if !voice.SupportedLanguage(lang) {
		return Params{}, fmt.Errorf("unsupported language %q", lang)
	}
	resolved := voice.Resolve(lang, voiceID, voice.Defaults{Language: defaults.Language, Voice: defaults.Voice})
	if !voice.Known(resolved) {
		return Params{}, fmt.Errorf("unknown voice %q", resolved)
	}

	sr := speech.SampleRate(rate)
	if rate == 0 {
		sr = speech.SampleRate(defaults.SampleRate)
	}
	if !sr.Valid() {
		return Params{}, fmt.Errorf("unsupported sample rate %d", int(sr))
	}

	if codec == "" {
		codec = defaults.Codec
	}
	c, err := speech.ParseCodec(codec)
	if err != nil {
		return Params{}, err
	}

	return Params{Language: lang, VoiceID: resolved, SampleRate: sr, Codec: c}, nil
}
