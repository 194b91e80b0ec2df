// Package gateway is the single entry point for speech synthesis. It admits
// a call through the concurrency limiter, obtains a bearer token and hands
// the request to the dispatcher, all under one overall deadline.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/salute-gateway/internal/auth"
	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/limiter"
	"github.com/loqalabs/salute-gateway/internal/speech"
	"github.com/loqalabs/salute-gateway/internal/synth"
)

// TokenSource hands out bearer tokens.
type TokenSource interface {
	Token(ctx context.Context, cred speech.Credential) (string, error)
}

// Dispatcher performs the synthesis exchange.
type Dispatcher interface {
	Dispatch(ctx context.Context, token string, req speech.Request) speech.Result
}

// Observer is told about every finished call.
type Observer func(ctx context.Context, call speech.Call)

type Option func(*Gateway)

// WithObserver adds an observer; observers run synchronously after the slot
// has been released.
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

// WithClock overrides the clock used to stamp calls.
func WithClock(clock func() time.Time) Option {
	return func(g *Gateway) { g.clock = clock }
}

type Gateway struct {
	limiter    *limiter.Limiter
	tokens     TokenSource
	dispatcher Dispatcher
	timeout    time.Duration
	log        *slog.Logger
	clock      func() time.Time
	observers  []Observer

	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	registration metric.Registration
}

func New(ceiling int, timeout time.Duration, tokens TokenSource, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if tokens == nil || dispatcher == nil {
		return nil, errors.New("gateway requires a token source and a dispatcher")
	}
	if timeout <= 0 {
		return nil, errors.New("gateway timeout must be positive")
	}
	lim, err := limiter.New(ceiling)
	if err != nil {
		return nil, fmt.Errorf("create limiter: %w", err)
	}
	g := &Gateway{
		limiter:    lim,
		tokens:     tokens,
		dispatcher: dispatcher,
		timeout:    timeout,
		log:        logger.With(slog.String("component", "gateway")),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.registerMetrics()
	return g, nil
}

// FromConfig wires a Gateway against the SaluteSpeech endpoints in cfg. The
// returned Manager is exposed for diagnostics.
func FromConfig(cfg config.SpeechConfig, client *http.Client, logger *slog.Logger, opts ...Option) (*Gateway, *auth.Manager, error) {
	tokens := auth.NewManager(cfg, client, logger)
	dispatcher := synth.NewDispatcher(cfg.SynthesisEndpoint, client, logger)
	g, err := New(cfg.ConcurrencyCeiling, cfg.SynthesisTimeout(), tokens, dispatcher, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	return g, tokens, nil
}

// Synthesize turns text into audio. It never returns an error: failures are
// reported through the Result. An empty codec means opus.
func (g *Gateway) Synthesize(ctx context.Context, text string, cred speech.Credential, voiceID string, rate speech.SampleRate, codec speech.Codec) speech.Result {
	if codec == "" {
		codec = speech.DefaultCodec
	}
	req := speech.Request{Text: text, VoiceID: voiceID, SampleRate: rate, Codec: codec}

	start := g.clock()
	res := g.synthesize(ctx, cred, req)
	finished := g.clock()
	latency := finished.Sub(start)

	attrs := metric.WithAttributes(
		attribute.String("outcome", res.Outcome.String()),
		attribute.String("codec", string(codec)),
	)
	if g.requests != nil {
		g.requests.Add(ctx, 1, attrs)
	}
	if g.duration != nil {
		g.duration.Record(ctx, latency.Seconds(), attrs)
	}

	if res.OK() {
		g.log.Debug("synthesis completed",
			slog.String("request_id", speech.RequestID(ctx)),
			slog.String("voice", req.Voice()),
			slog.Int("bytes", len(res.Audio)),
			slog.Duration("latency", latency),
		)
	} else {
		g.log.Warn("synthesis unavailable",
			slog.String("request_id", speech.RequestID(ctx)),
			slog.String("voice", req.Voice()),
			slog.String("outcome", res.Outcome.String()),
			slog.String("error", errString(res.Err)),
		)
	}

	if len(g.observers) > 0 {
		call := speech.NewCall(ctx, req, res, latency, finished)
		for _, o := range g.observers {
			o(ctx, call)
		}
	}
	return res
}

func (g *Gateway) synthesize(ctx context.Context, cred speech.Credential, req speech.Request) speech.Result {
	release, err := g.limiter.Acquire(ctx)
	if err != nil {
		return speech.FailureFromError(fmt.Errorf("wait for synthesis slot: %w", err))
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	token, err := g.tokens.Token(ctx, cred)
	if err != nil {
		return speech.FailureFromError(err)
	}
	return g.dispatcher.Dispatch(ctx, token, req)
}

// InFlight returns the number of calls currently holding a slot.
func (g *Gateway) InFlight() int { return g.limiter.InFlight() }

// Capacity returns the concurrency ceiling.
func (g *Gateway) Capacity() int { return g.limiter.Capacity() }

// Close unregisters the gauge callbacks. Calls already in flight finish
// normally.
func (g *Gateway) Close() error {
	if g.registration == nil {
		return nil
	}
	err := g.registration.Unregister()
	g.registration = nil
	return err
}

func (g *Gateway) registerMetrics() {
	meter := otel.Meter("github.com/loqalabs/salute-gateway/gateway")
	var err error
	if g.requests, err = meter.Int64Counter("salute.synthesis.requests",
		metric.WithDescription("Synthesis calls by outcome")); err != nil {
		g.log.Warn("failed to register metric", slog.String("error", err.Error()))
	}
	if g.duration, err = meter.Float64Histogram("salute.synthesis.duration",
		metric.WithDescription("Synthesis latency including slot wait"),
		metric.WithUnit("s")); err != nil {
		g.log.Warn("failed to register metric", slog.String("error", err.Error()))
	}
	inflight, err := meter.Int64ObservableGauge("salute.synthesis.inflight",
		metric.WithDescription("Calls holding a concurrency slot"))
	if err != nil {
		g.log.Warn("failed to register metric", slog.String("error", err.Error()))
		return
	}
	capacity, err := meter.Int64ObservableGauge("salute.synthesis.capacity",
		metric.WithDescription("Configured concurrency ceiling"))
	if err != nil {
		g.log.Warn("failed to register metric", slog.String("error", err.Error()))
		return
	}
	g.registration, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(inflight, int64(g.limiter.InFlight()))
		obs.ObserveInt64(capacity, int64(g.limiter.Capacity()))
		return nil
	}, inflight, capacity)
	if err != nil {
		g.log.Warn("failed to register metric callback", slog.String("error", err.Error()))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
