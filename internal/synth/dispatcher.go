// Package synth performs the text-to-speech HTTP exchange.
package synth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/salute-gateway/internal/speech"
)

const (
	contentTypeSSML = "application/ssml"
	contentTypeText = "application/text"

	maxDiagnosticBody = 4 << 10
)

// Dispatcher sends one synthesis request per call over a shared client.
type Dispatcher struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger
	tracer   trace.Tracer
}

func NewDispatcher(endpoint string, client *http.Client, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Dispatcher{
		endpoint: endpoint,
		client:   client,
		log:      logger.With(slog.String("component", "synth")),
		tracer:   otel.Tracer("github.com/loqalabs/salute-gateway/synth"),
	}
}

// Dispatch synthesizes req using token. Every failure is logged and returned
// as a failed Result; the deadline is taken from ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, token string, req speech.Request) speech.Result {
	ctx, span := d.tracer.Start(ctx, "synth.dispatch", trace.WithAttributes(
		attribute.String("voice", req.Voice()),
		attribute.String("codec", string(req.Codec)),
		attribute.Bool("ssml", req.IsMarkup()),
	))
	defer span.End()

	res := d.dispatch(ctx, token, req)
	if !res.OK() {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Outcome.String())
	}
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, token string, req speech.Request) speech.Result {
	target, err := d.url(req)
	if err != nil {
		d.log.Error("invalid synthesis endpoint", slog.String("url", d.endpoint), slog.String("error", err.Error()))
		return speech.Failure(speech.OutcomeTransportError, fmt.Errorf("%w: %v", speech.ErrTransport, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(req.Text))
	if err != nil {
		return speech.Failure(speech.OutcomeTransportError, fmt.Errorf("%w: build request: %v", speech.ErrTransport, err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if req.IsMarkup() {
		httpReq.Header.Set("Content-Type", contentTypeSSML)
	} else {
		httpReq.Header.Set("Content-Type", contentTypeText)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		d.log.Error("synthesis request failed", slog.String("url", target), slog.String("error", err.Error()))
		return speech.FailureFromError(fmt.Errorf("synthesis request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBody))
		d.log.Error("synthesis rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("url", target),
			slog.String("body", string(body)),
		)
		return speech.Failure(speech.OutcomeSynthesisFailure,
			fmt.Errorf("%w: synthesis endpoint returned %d", speech.ErrSynthesisFailed, resp.StatusCode))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		d.log.Error("synthesis body read failed", slog.String("url", target), slog.String("error", err.Error()))
		return speech.FailureFromError(fmt.Errorf("read audio: %w", err))
	}
	return speech.Success(req.Codec.Container(), audio)
}

func (d *Dispatcher) url(req speech.Request) (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("format", string(req.Codec))
	q.Set("voice", req.Voice())
	u.RawQuery = q.Encode()
	return u.String(), nil
}
