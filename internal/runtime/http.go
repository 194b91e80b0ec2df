package runtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/loqalabs/salute-gateway/internal/capability"
	"github.com/loqalabs/salute-gateway/internal/speech"
	"github.com/loqalabs/salute-gateway/internal/stats"
	"github.com/loqalabs/salute-gateway/internal/tts"
	"github.com/loqalabs/salute-gateway/internal/voice"
)

const (
	maxTextBytes    = 64 << 10
	headerRequestID = "X-Request-ID"
)

type errorBody struct {
	RequestID string `json:"request_id,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Error     string `json:"error"`
}

func (r *Runtime) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", r.handleHealth)
	mux.HandleFunc("GET /readyz", r.handleReady)
	if r.metrics != nil {
		mux.Handle("GET /metrics", r.metrics)
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/synthesize", r.handleSynthesize)
	api.HandleFunc("GET /v1/voices", r.handleVoices)
	api.HandleFunc("POST /v1/credentials/validate", r.handleValidate)
	api.HandleFunc("GET /v1/stats", r.handleStats)
	api.HandleFunc("GET /v1/journal", r.handleJournal)

	var apiHandler http.Handler = api
	if r.ingress != nil {
		apiHandler = r.ingress.middleware(apiHandler)
	}
	mux.Handle("/v1/", apiHandler)

	return otelhttp.NewHandler(mux, "salute-gateway")
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.isReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) isReady() bool {
	if !r.ready.Load() {
		return false
	}
	if r.bus != nil && !r.bus.Healthy() {
		return false
	}
	if r.tts != nil && !r.tts.Healthy() {
		return false
	}
	if r.registry != nil && !r.registry.Healthy() {
		return false
	}
	return true
}

func (r *Runtime) handleSynthesize(w http.ResponseWriter, req *http.Request) {
	requestID := strings.TrimSpace(req.Header.Get(headerRequestID))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(headerRequestID, requestID)

	body, err := io.ReadAll(io.LimitReader(req.Body, maxTextBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{RequestID: requestID, Error: "failed to read body"})
		return
	}
	if len(body) > maxTextBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{RequestID: requestID, Error: "text too long"})
		return
	}
	text := string(body)
	if strings.TrimSpace(text) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{RequestID: requestID, Error: "text must not be empty"})
		return
	}

	q := req.URL.Query()
	rate := 0
	if v := q.Get("rate"); v != "" {
		if rate, err = strconv.Atoi(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{RequestID: requestID, Error: "rate must be an integer"})
			return
		}
	}
	params, err := tts.ResolveParams(r.cfg.Speech, q.Get("lang"), q.Get("voice"), rate, q.Get("codec"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{RequestID: requestID, Error: err.Error()})
		return
	}

	ctx := speech.WithRequestID(req.Context(), requestID)
	ctx = speech.WithLanguage(ctx, params.Language)
	res := r.synth.Synthesize(ctx, text, speech.Credential(r.cfg.Speech.Credential), params.VoiceID, params.SampleRate, params.Codec)
	if !res.OK() {
		writeJSON(w, failureStatus(res.Outcome), errorBody{
			RequestID: requestID,
			Outcome:   res.Outcome.String(),
			Error:     "synthesis unavailable",
		})
		return
	}

	w.Header().Set("Content-Type", params.Codec.MIMEType())
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.Header().Set("X-Voice", params.VoiceID)
	w.Header().Set("X-Container", res.ContainerFormat)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

func failureStatus(o speech.Outcome) int {
	switch o {
	case speech.OutcomeTimeout:
		return http.StatusGatewayTimeout
	case speech.OutcomeCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (r *Runtime) handleVoices(w http.ResponseWriter, req *http.Request) {
	lang := req.URL.Query().Get("lang")
	if lang == "" {
		writeJSON(w, http.StatusOK, voice.All())
		return
	}
	if !voice.SupportedLanguage(lang) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unsupported language"})
		return
	}
	writeJSON(w, http.StatusOK, voice.ForLanguage(lang))
}

type validateRequest struct {
	Credential string `json:"credential"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func (r *Runtime) handleValidate(w http.ResponseWriter, req *http.Request) {
	var in validateRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, 8<<10)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	if strings.TrimSpace(in.Credential) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "credential must not be empty"})
		return
	}

	err := r.validate(req.Context(), r.cfg.Speech, speech.Credential(in.Credential), r.logger)
	if err == nil {
		writeJSON(w, http.StatusOK, validateResponse{Valid: true, Outcome: speech.OutcomeSuccess.String()})
		return
	}
	outcome := speech.Classify(err)
	if errors.Is(err, speech.ErrAuthFailed) {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false, Outcome: outcome.String(), Error: "credential rejected"})
		return
	}
	writeJSON(w, failureStatus(outcome), validateResponse{Valid: false, Outcome: outcome.String(), Error: "authentication endpoint unreachable"})
}

type statsResponse struct {
	Capacity   int               `json:"capacity"`
	InFlight   int               `json:"in_flight"`
	TokenState string            `json:"token_state,omitempty"`
	Counters   *stats.Snapshot   `json:"counters,omitempty"`
	Journal24h map[string]int    `json:"journal_24h,omitempty"`
	Nodes      *capability.Peers `json:"nodes,omitempty"`
}

func (r *Runtime) handleStats(w http.ResponseWriter, req *http.Request) {
	out := statsResponse{
		Capacity: r.gateway.Capacity(),
		InFlight: r.gateway.InFlight(),
	}
	if r.tokens != nil {
		out.TokenState = r.tokens.State(speech.Credential(r.cfg.Speech.Credential)).String()
	}
	if r.stats != nil {
		snap, err := r.stats.Snapshot(req.Context())
		if err != nil {
			r.logger.Warn("failed to read stats", slogError(err))
		} else {
			out.Counters = &snap
		}
	}
	if r.journal != nil {
		counts, err := r.journal.OutcomeCounts(req.Context(), time.Now().Add(-24*time.Hour))
		if err != nil {
			r.logger.Warn("failed to read journal counts", slogError(err))
		} else {
			out.Journal24h = counts
		}
	}
	if r.registry != nil {
		peers := r.registry.Peers()
		out.Nodes = &peers
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Runtime) handleJournal(w http.ResponseWriter, req *http.Request) {
	if r.journal == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	entries, err := r.journal.Recent(req.Context(), limit)
	if err != nil {
		r.logger.Warn("failed to read journal", slogError(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "journal unavailable"})
		return
	}
	if entries == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("failed to write response", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
