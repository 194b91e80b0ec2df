package speech

import (
	"context"
	"time"
)

// Call summarises one finished synthesis for journals and counters. It never
// carries audio or credentials.
type Call struct {
	RequestID     string
	Language      string
	VoiceID       string
	SampleRate    SampleRate
	Codec         Codec
	Markup        bool
	TextLength    int
	Outcome       Outcome
	AudioBytes    int
	AudioDuration time.Duration
	Latency       time.Duration
	Error         string
	FinishedAt    time.Time
}

// NewCall fills a Call from a request and its result.
func NewCall(ctx context.Context, req Request, res Result, latency time.Duration, finished time.Time) Call {
	c := Call{
		RequestID:  RequestID(ctx),
		Language:   Language(ctx),
		VoiceID:    req.VoiceID,
		SampleRate: req.SampleRate,
		Codec:      req.Codec,
		Markup:     req.IsMarkup(),
		TextLength: len([]rune(req.Text)),
		Outcome:    res.Outcome,
		AudioBytes: len(res.Audio),
		Latency:    latency,
		FinishedAt: finished,
	}
	if d, ok := AudioDuration(res.ContainerFormat, res.Audio); ok {
		c.AudioDuration = d
	}
	if res.Err != nil {
		c.Error = res.Err.Error()
	}
	return c
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	languageKey
)

// WithRequestID tags ctx with the caller's request identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithLanguage records the locale the voice was resolved for.
func WithLanguage(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, languageKey, lang)
}

func Language(ctx context.Context) string {
	lang, _ := ctx.Value(languageKey).(string)
	return lang
}
