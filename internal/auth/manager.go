// Package auth obtains and caches SaluteSpeech bearer tokens.
//
// A Manager keeps one Store per credential and refreshes it single-flight:
// however many goroutines ask for a token while it is absent or stale, only
// one authentication request goes out and every waiter sees its result.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/speech"
)

const maxDiagnosticBody = 4 << 10

type entry struct {
	lock  *semaphore.Weighted
	store Store

	// refreshes counts completed exchanges; lastErr is the outcome of the
	// most recent one. Both are written only while lock is held.
	refreshes atomic.Uint64
	lastErr   error
}

type Manager struct {
	exchanger
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	entries map[speech.Credential]*entry

	tracer    trace.Tracer
	refreshes metric.Int64Counter
}

func NewManager(cfg config.SpeechConfig, client *http.Client, logger *slog.Logger) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	m := &Manager{
		exchanger: exchanger{
			endpoint: cfg.AuthEndpoint,
			scope:    cfg.Scope,
			timeout:  cfg.AuthTimeout(),
			client:   client,
			log:      logger.With(slog.String("component", "auth")),
			rqUID:    uuid.NewString,
		},
		ttl:     cfg.TokenTTL(),
		clock:   time.Now,
		entries: make(map[speech.Credential]*entry),
		tracer:  otel.Tracer("github.com/loqalabs/salute-gateway/auth"),
	}
	counter, err := otel.Meter("github.com/loqalabs/salute-gateway/auth").Int64Counter(
		"salute.auth.refreshes",
		metric.WithDescription("Authentication exchanges by result"),
	)
	if err != nil {
		m.log.Warn("failed to register auth metrics", slog.String("error", err.Error()))
	} else {
		m.refreshes = counter
	}
	return m
}

// Token returns a valid bearer token for cred, refreshing it if needed. The
// per-credential lock is held across the whole check-and-refresh so that
// callers queued behind a refresh reuse its token, or its error.
func (m *Manager) Token(ctx context.Context, cred speech.Credential) (string, error) {
	e := m.entryFor(cred)
	seen := e.refreshes.Load()
	if err := e.lock.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for token refresh: %w", err)
	}
	defer e.lock.Release(1)

	if tok, ok := e.store.Get(m.clock(), m.ttl); ok {
		return tok.Value, nil
	}
	// A refresh finished while we waited and it failed: share its result
	// rather than issuing another request.
	if e.refreshes.Load() != seen && e.lastErr != nil {
		return "", e.lastErr
	}

	ctx, span := m.tracer.Start(ctx, "auth.refresh")
	defer span.End()

	value, err := m.exchange(ctx, cred)
	e.lastErr = err
	if ctx.Err() != nil {
		// The refresher's own caller canceled or ran out of time; that says
		// nothing about the credential, so waiters try again themselves.
		e.lastErr = nil
	}
	e.refreshes.Add(1)
	if err != nil {
		e.store.Reset()
		m.count(ctx, "failure")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	e.store.Replace(AccessToken{Value: value, IssuedAt: m.clock()})
	m.count(ctx, "success")
	return value, nil
}

// State reports the token state for cred without blocking on a refresh.
func (m *Manager) State(cred speech.Credential) State {
	m.mu.Lock()
	e, ok := m.entries[cred]
	m.mu.Unlock()
	if !ok {
		return StateEmpty
	}
	return e.store.State(m.clock(), m.ttl)
}

func (m *Manager) entryFor(cred speech.Credential) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[cred]
	if !ok {
		e = &entry{lock: semaphore.NewWeighted(1)}
		m.entries[cred] = e
	}
	return e
}

func (m *Manager) count(ctx context.Context, result string) {
	if m.refreshes == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

type exchanger struct {
	endpoint string
	scope    string
	timeout  time.Duration
	client   *http.Client
	log      *slog.Logger
	rqUID    func() string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// exchange performs one authentication request. It never retries.
func (x exchanger) exchange(ctx context.Context, cred speech.Credential) (string, error) {
	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	form := url.Values{"scope": {x.scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+string(cred))
	req.Header.Set("RqUID", x.rqUID())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		x.log.Error("auth request failed", slog.String("url", x.endpoint), slog.String("error", err.Error()))
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBody))
		x.log.Error("auth exchange rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("url", x.endpoint),
			slog.String("body", string(body)),
		)
		return "", fmt.Errorf("%w: auth endpoint returned %d", speech.ErrAuthFailed, resp.StatusCode)
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		x.log.Error("auth response undecodable", slog.String("url", x.endpoint), slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: decode auth response: %v", speech.ErrAuthFailed, err)
	}
	if payload.AccessToken == "" {
		x.log.Error("auth response missing access_token", slog.String("url", x.endpoint))
		return "", fmt.Errorf("%w: access_token missing", speech.ErrAuthFailed)
	}
	return payload.AccessToken, nil
}
