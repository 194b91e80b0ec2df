package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/salute-gateway/internal/auth"
	"github.com/loqalabs/salute-gateway/internal/bus"
	"github.com/loqalabs/salute-gateway/internal/capability"
	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/eventstore"
	"github.com/loqalabs/salute-gateway/internal/gateway"
	"github.com/loqalabs/salute-gateway/internal/natsserver"
	"github.com/loqalabs/salute-gateway/internal/speech"
	"github.com/loqalabs/salute-gateway/internal/stats"
	"github.com/loqalabs/salute-gateway/internal/transport"
	"github.com/loqalabs/salute-gateway/internal/tts"
)

type validateFunc func(ctx context.Context, cfg config.SpeechConfig, cred speech.Credential, logger *slog.Logger) error

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	metrics     http.Handler
	ready       atomic.Bool
	wg          sync.WaitGroup

	gateway    *gateway.Gateway
	synth      tts.Synthesizer
	tokens     *auth.Manager
	httpClient *http.Client
	validate   validateFunc

	journal    *eventstore.Store
	stats      stats.Recorder
	statsClose func() error

	natsServer *natsserver.EmbeddedServer
	bus        *bus.Client
	tts        *tts.Service
	registry   *capability.Registry
	ingress    *ingressLimiter
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:      cfg,
		logger:   logger,
		validate: auth.Validate,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	r.metrics = metricsHandler

	if err := r.build(ctx); err != nil {
		r.close()
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("tts_mode", r.cfg.TTS.Mode),
		slog.Int("concurrency_ceiling", r.gateway.Capacity()),
		slog.Bool("bus", r.bus != nil))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.close()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// build constructs every component except telemetry and the HTTP listener.
func (r *Runtime) build(ctx context.Context) error {
	journal, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	r.journal = journal
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		journal.RunPruner(ctx, time.Hour)
	}()

	recorder, statsClose, err := stats.New(r.cfg.Stats)
	if err != nil {
		return fmt.Errorf("failed to init stats: %w", err)
	}
	r.stats = recorder
	r.statsClose = statsClose

	opts := []gateway.Option{gateway.WithObserver(journal.Observe)}
	if recorder != nil {
		opts = append(opts, gateway.WithObserver(stats.Observer(recorder, r.logger)))
	}

	switch r.cfg.TTS.Mode {
	case "mock":
		gw, err := gateway.New(r.cfg.Speech.ConcurrencyCeiling, r.cfg.Speech.SynthesisTimeout(),
			tts.MockTokens{}, tts.MockDispatcher{}, r.logger, opts...)
		if err != nil {
			return fmt.Errorf("failed to build mock gateway: %w", err)
		}
		r.gateway = gw
		r.logger.Warn("synthesis running in mock mode")
	default:
		r.httpClient = transport.NewClient(r.cfg.Speech.TLSInsecure)
		gw, tokens, err := gateway.FromConfig(r.cfg.Speech, r.httpClient, r.logger, opts...)
		if err != nil {
			return fmt.Errorf("failed to build gateway: %w", err)
		}
		r.gateway = gw
		r.tokens = tokens
	}
	r.synth = r.gateway

	if r.cfg.Ingress.RateEnabled {
		r.ingress = newIngressLimiter(r.cfg.Ingress)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.ingress.runJanitor(ctx, time.Minute)
		}()
	}

	if r.cfg.Bus.Enabled {
		if err := r.startBus(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	busCfg := r.cfg.Bus
	srv, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	r.natsServer = srv
	if srv != nil {
		busCfg.Servers = []string{srv.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.bus = client

	r.tts = tts.NewService(ctx, r.cfg.TTS, r.cfg.Speech, client, r.synth, r.logger)
	if err := r.tts.Start(); err != nil {
		return fmt.Errorf("failed to start tts service: %w", err)
	}

	registry, err := capability.NewRegistry(ctx, r.cfg.Node,
		capability.SpeechCapabilities(r.cfg.Speech, r.cfg.TTS.Mode), client, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start capability registry: %w", err)
	}
	r.registry = registry
	return nil
}

// close releases components in reverse construction order. Safe on a
// partially built runtime.
func (r *Runtime) close() {
	if r.registry != nil {
		r.registry.Close()
	}
	if r.tts != nil {
		r.tts.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.natsServer.Shutdown()
	if r.gateway != nil {
		if err := r.gateway.Close(); err != nil {
			r.logger.Warn("gateway close error", slogError(err))
		}
	}
	if r.httpClient != nil {
		r.httpClient.CloseIdleConnections()
	}
	if r.statsClose != nil {
		if err := r.statsClose(); err != nil {
			r.logger.Warn("stats close error", slogError(err))
		}
	}
	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			r.logger.Warn("journal close error", slogError(err))
		}
	}
}
