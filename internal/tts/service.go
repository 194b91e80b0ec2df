package tts

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/salute-gateway/internal/bus"
	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/protocol"
	"github.com/loqalabs/salute-gateway/internal/speech"
)

// Service exposes a Synthesizer as a speech provider on the bus: requests on
// tts.request are answered with one tts.audio message on success and a
// tts.done status in every case.
type Service struct {
	cfg      config.TTSConfig
	defaults config.SpeechConfig
	cred     speech.Credential
	bus      *bus.Client
	synth    Synthesizer
	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewService(parent context.Context, cfg config.TTSConfig, defaults config.SpeechConfig, busClient *bus.Client, synth Synthesizer, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		defaults: defaults,
		cred:     speech.Credential(defaults.Credential),
		bus:      busClient,
		synth:    synth,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "tts-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTTSRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("speech provider listening", slog.String("subject", protocol.SubjectTTSRequest))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SynthesisRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode tts request", slogError(err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	params, err := ResolveParams(s.defaults, req.Language, req.Voice, req.SampleRate, req.Codec)
	if err != nil {
		s.logger.Warn("rejecting tts request", slog.String("request_id", req.RequestID), slogError(err))
		s.publishStatus(req, "invalid_request", err.Error())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.RequestTimeoutMS)*time.Millisecond)
		defer cancel()
		ctx = speech.WithRequestID(ctx, req.RequestID)
		ctx = speech.WithLanguage(ctx, params.Language)

		res := s.synth.Synthesize(ctx, req.Text, s.cred, params.VoiceID, params.SampleRate, params.Codec)
		if res.OK() {
			s.publishAudio(req, params, res)
		}
		var errText string
		if res.Err != nil {
			errText = res.Err.Error()
		}
		s.publishStatus(req, res.Outcome.String(), errText)
	}()
}

func (s *Service) publishAudio(req protocol.SynthesisRequest, params Params, res speech.Result) {
	packet := protocol.SynthesisAudio{
		RequestID:  req.RequestID,
		SessionID:  req.SessionID,
		Target:     req.Target,
		Voice:      params.VoiceID,
		SampleRate: int(params.SampleRate),
		Codec:      string(params.Codec),
		Container:  res.ContainerFormat,
		Audio:      res.Audio,
	}
	if err := s.bus.PublishJSON(protocol.SubjectTTSAudio, packet); err != nil {
		s.logger.Warn("failed to publish tts audio", slogError(err))
	}
}

func (s *Service) publishStatus(req protocol.SynthesisRequest, outcome, errText string) {
	status := protocol.SynthesisStatus{
		RequestID: req.RequestID,
		SessionID: req.SessionID,
		Target:    req.Target,
		Completed: outcome == speech.OutcomeSuccess.String(),
		Outcome:   outcome,
		Error:     errText,
		Timestamp: time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectTTSDone, status); err != nil {
		s.logger.Warn("failed to publish tts status", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
