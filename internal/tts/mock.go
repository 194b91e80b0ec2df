package tts

import (
	"context"
	"errors"
	"io"
	"time"
	"unicode/utf8"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/loqalabs/salute-gateway/internal/speech"
)

// MockDispatcher produces silence sized to the text so the gateway can run
// without vendor credentials. Plug it into gateway.New with MockTokens.
type MockDispatcher struct {
	Latency time.Duration
}

func (m MockDispatcher) Dispatch(ctx context.Context, _ string, req speech.Request) speech.Result {
	select {
	case <-ctx.Done():
		return speech.FailureFromError(ctx.Err())
	case <-time.After(m.Latency):
	}

	if req.Codec.Container() != "wav" {
		return speech.Success(req.Codec.Container(), []byte("OggS"))
	}
	// 60ms of audio per character.
	samples := int(req.SampleRate) * 60 / 1000 * utf8.RuneCountInString(req.Text)
	data, err := silenceWAV(int(req.SampleRate), samples)
	if err != nil {
		return speech.Failure(speech.OutcomeSynthesisFailure, errors.Join(speech.ErrSynthesisFailed, err))
	}
	return speech.Success("wav", data)
}

// MockTokens hands out a fixed token.
type MockTokens struct{}

func (MockTokens) Token(ctx context.Context, _ speech.Credential) (string, error) {
	return "mock-token", ctx.Err()
}

func silenceWAV(rate, samples int) ([]byte, error) {
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// memWriteSeeker lets the wav encoder patch its header in memory.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(next)
	return next, nil
}
