package tts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/salute-gateway/internal/bus"
	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/gateway"
	"github.com/loqalabs/salute-gateway/internal/natsserver"
	"github.com/loqalabs/salute-gateway/internal/protocol"
	"github.com/loqalabs/salute-gateway/internal/speech"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveParams(t *testing.T) {
	defaults := config.Default().Speech

	tests := []struct {
		name                string
		lang, voice, codec  string
		rate                int
		wantVoice, wantLang string
		wantRate            speech.SampleRate
		wantCodec           speech.Codec
		wantErr             bool
	}{
		{name: "all defaults", wantVoice: "Nec", wantLang: "ru-RU", wantRate: 24000, wantCodec: speech.CodecOpus},
		{name: "english forces kira", lang: "en-US", voice: "Bys", wantVoice: "Kin", wantLang: "en-US", wantRate: 24000, wantCodec: speech.CodecOpus},
		{name: "russian rejects kira", lang: "ru-RU", voice: "Kin", wantVoice: "Nec", wantLang: "ru-RU", wantRate: 24000, wantCodec: speech.CodecOpus},
		{name: "explicit settings", voice: "Tur", rate: 8000, codec: "ALAW", wantVoice: "Tur", wantLang: "ru-RU", wantRate: 8000, wantCodec: speech.CodecALaw},
		{name: "unknown language", lang: "de-DE", wantErr: true},
		{name: "unknown voice", voice: "Xyz", wantErr: true},
		{name: "bad rate", rate: 16000, wantErr: true},
		{name: "bad codec", codec: "mp3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ResolveParams(defaults, tt.lang, tt.voice, tt.rate, tt.codec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVoice, p.VoiceID)
			assert.Equal(t, tt.wantLang, p.Language)
			assert.Equal(t, tt.wantRate, p.SampleRate)
			assert.Equal(t, tt.wantCodec, p.Codec)
		})
	}
}

func TestMockDispatcherProducesWav(t *testing.T) {
	res := MockDispatcher{}.Dispatch(context.Background(), "tok", speech.Request{
		Text: "Привет", VoiceID: "Nec", SampleRate: speech.Rate8000, Codec: speech.CodecWAV16,
	})
	require.True(t, res.OK(), "unexpected failure: %v", res.Err)
	assert.Equal(t, "wav", res.ContainerFormat)

	d, ok := speech.AudioDuration(res.ContainerFormat, res.Audio)
	require.True(t, ok)
	assert.InDelta(t, float64(360*time.Millisecond), float64(d), float64(5*time.Millisecond))
}

func TestServiceAnswersOverBus(t *testing.T) {
	busCfg := config.Default().Bus
	busCfg.Enabled = true
	busCfg.Port = -1
	busCfg.StoreDir = ""
	srv, err := natsserver.Start(busCfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	busCfg.Servers = []string{srv.ClientURL()}
	client, err := bus.Connect(context.Background(), busCfg, "tts-test", discardLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	speechCfg := config.Default().Speech
	speechCfg.Credential = "cred"
	g, err := gateway.New(1, time.Second, MockTokens{}, MockDispatcher{}, discardLogger())
	require.NoError(t, err)

	ttsCfg := config.Default().TTS
	svc := NewService(context.Background(), ttsCfg, speechCfg, client, g, discardLogger())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Close)
	assert.True(t, svc.Healthy())

	audio := make(chan *nats.Msg, 4)
	done := make(chan *nats.Msg, 4)
	_, err = client.Conn().ChanSubscribe(protocol.SubjectTTSAudio, audio)
	require.NoError(t, err)
	_, err = client.Conn().ChanSubscribe(protocol.SubjectTTSDone, done)
	require.NoError(t, err)
	require.NoError(t, client.Conn().Flush())

	require.NoError(t, client.PublishJSON(protocol.SubjectTTSRequest, protocol.SynthesisRequest{
		RequestID: "req-1",
		Text:      "Hello",
		Language:  "en-US",
		Voice:     "Nec",
		Codec:     "wav16",
	}))

	select {
	case msg := <-audio:
		var packet protocol.SynthesisAudio
		require.NoError(t, json.Unmarshal(msg.Data, &packet))
		assert.Equal(t, "req-1", packet.RequestID)
		assert.Equal(t, "Kin", packet.Voice)
		assert.Equal(t, "wav", packet.Container)
		assert.NotEmpty(t, packet.Audio)
	case <-time.After(2 * time.Second):
		t.Fatal("no audio published")
	}

	select {
	case msg := <-done:
		var status protocol.SynthesisStatus
		require.NoError(t, json.Unmarshal(msg.Data, &status))
		assert.True(t, status.Completed)
		assert.Equal(t, "success", status.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("no status published")
	}

	require.NoError(t, client.PublishJSON(protocol.SubjectTTSRequest, protocol.SynthesisRequest{Text: "x", Codec: "mp3"}))
	select {
	case msg := <-done:
		var status protocol.SynthesisStatus
		require.NoError(t, json.Unmarshal(msg.Data, &status))
		assert.False(t, status.Completed)
		assert.Equal(t, "invalid_request", status.Outcome)
		assert.NotEmpty(t, status.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("no status for invalid request")
	}
}
