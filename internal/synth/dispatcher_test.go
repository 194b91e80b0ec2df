package synth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/salute-gateway/internal/speech"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captured struct {
	auth        string
	contentType string
	format      string
	voice       string
	body        string
}

func recordingServer(t *testing.T, status int, reply []byte) (*httptest.Server, <-chan captured) {
	t.Helper()
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- captured{
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			format:      r.URL.Query().Get("format"),
			voice:       r.URL.Query().Get("voice"),
			body:        string(body),
		}
		w.WriteHeader(status)
		_, _ = w.Write(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestDispatchPlainText(t *testing.T) {
	srv, seen := recordingServer(t, http.StatusOK, []byte("OggS-audio"))
	d := NewDispatcher(srv.URL+"/rest/v1/text:synthesize", srv.Client(), discardLogger())

	res := d.Dispatch(context.Background(), "tok", speech.Request{
		Text: "Привет", VoiceID: "Nec", SampleRate: speech.Rate24000, Codec: speech.CodecOpus,
	})
	require.True(t, res.OK(), "unexpected failure: %v", res.Err)
	assert.Equal(t, "ogg", res.ContainerFormat)
	assert.Equal(t, []byte("OggS-audio"), res.Audio)

	got := <-seen
	assert.Equal(t, "Bearer tok", got.auth)
	assert.Equal(t, "application/text", got.contentType)
	assert.Equal(t, "opus", got.format)
	assert.Equal(t, "Nec_24000", got.voice)
	assert.Equal(t, "Привет", got.body)
}

func TestDispatchMarkup(t *testing.T) {
	srv, seen := recordingServer(t, http.StatusOK, []byte("RIFF"))
	d := NewDispatcher(srv.URL, srv.Client(), discardLogger())

	res := d.Dispatch(context.Background(), "tok", speech.Request{
		Text: "<speak>Привет</speak>", VoiceID: "Bys", SampleRate: speech.Rate8000, Codec: speech.CodecWAV16,
	})
	require.True(t, res.OK())
	assert.Equal(t, "wav", res.ContainerFormat)

	got := <-seen
	assert.Equal(t, "application/ssml", got.contentType)
	assert.Equal(t, "Bys_8000", got.voice)
	assert.Equal(t, "<speak>Привет</speak>", got.body)
}

func TestDispatchRejected(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusBadRequest, []byte(`{"status":400,"message":"bad voice"}`))
	d := NewDispatcher(srv.URL, srv.Client(), discardLogger())

	res := d.Dispatch(context.Background(), "tok", speech.Request{Text: "x", VoiceID: "Nec", SampleRate: speech.Rate24000, Codec: speech.CodecOpus})
	assert.False(t, res.OK())
	assert.Equal(t, speech.OutcomeSynthesisFailure, res.Outcome)
	assert.ErrorIs(t, res.Err, speech.ErrSynthesisFailed)
	assert.Empty(t, res.Audio)
	assert.Empty(t, res.ContainerFormat)
}

func TestDispatchDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	d := NewDispatcher(srv.URL, srv.Client(), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res := d.Dispatch(ctx, "tok", speech.Request{Text: "x", VoiceID: "Nec", SampleRate: speech.Rate24000, Codec: speech.CodecOpus})
	assert.Equal(t, speech.OutcomeTimeout, res.Outcome)
	assert.Empty(t, res.Audio)
}

func TestDispatchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	d := NewDispatcher(endpoint, nil, discardLogger())
	res := d.Dispatch(context.Background(), "tok", speech.Request{Text: "x", VoiceID: "Nec", SampleRate: speech.Rate24000, Codec: speech.CodecOpus})
	assert.Equal(t, speech.OutcomeTransportError, res.Outcome)
	assert.False(t, res.OK())
}
