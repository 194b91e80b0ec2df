package speech

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Credential is the opaque authorization key issued by the SaluteSpeech
// developer console. It is sent as-is in the Basic authorization header.
type Credential string

// String masks the credential so it never ends up in logs or errors.
func (c Credential) String() string {
	if c == "" {
		return ""
	}
	return "***"
}

// LogValue implements slog.LogValuer.
func (c Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// Codec is the audio encoding requested from the synthesis endpoint.
type Codec string

const (
	CodecWAV16 Codec = "wav16"
	CodecPCM16 Codec = "pcm16"
	CodecALaw  Codec = "alaw"
	CodecOpus  Codec = "opus"
)

// DefaultCodec is used when a caller leaves the codec empty.
const DefaultCodec = CodecOpus

var codecContainers = map[Codec]string{
	CodecWAV16: "wav",
	CodecPCM16: "wav",
	CodecALaw:  "wav",
	CodecOpus:  "ogg",
}

// Codecs lists the supported codecs in a stable order.
func Codecs() []Codec {
	return []Codec{CodecWAV16, CodecPCM16, CodecALaw, CodecOpus}
}

// ParseCodec validates a codec name. An empty name yields DefaultCodec.
func ParseCodec(name string) (Codec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultCodec, nil
	}
	c := Codec(name)
	if _, ok := codecContainers[c]; !ok {
		return "", fmt.Errorf("unsupported codec %q", name)
	}
	return c, nil
}

// Container returns the file format that wraps the codec payload.
func (c Codec) Container() string {
	return codecContainers[c]
}

// Valid reports whether the codec is one of the supported encodings.
func (c Codec) Valid() bool {
	_, ok := codecContainers[c]
	return ok
}

// MIMEType is the content type used when serving audio in this container.
func (c Codec) MIMEType() string {
	switch c.Container() {
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// SampleRate is the output sample rate in Hz.
type SampleRate int

const (
	Rate8000  SampleRate = 8000
	Rate24000 SampleRate = 24000
)

// DefaultSampleRate matches the vendor default for the Nec voice family.
const DefaultSampleRate = Rate24000

// SampleRates lists the supported rates, preferred first.
func SampleRates() []SampleRate {
	return []SampleRate{Rate24000, Rate8000}
}

// ParseSampleRate validates a rate given as text. Empty yields DefaultSampleRate.
func ParseSampleRate(value string) (SampleRate, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultSampleRate, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid sample rate %q: %w", value, err)
	}
	r := SampleRate(n)
	if !r.Valid() {
		return 0, fmt.Errorf("unsupported sample rate %d", n)
	}
	return r, nil
}

// Valid reports whether the rate is accepted by the synthesis endpoint.
func (r SampleRate) Valid() bool {
	return r == Rate8000 || r == Rate24000
}

func (r SampleRate) String() string {
	return strconv.Itoa(int(r))
}

// Request is one synthesis call. It is built per call and not retained.
type Request struct {
	Text       string
	VoiceID    string
	SampleRate SampleRate
	Codec      Codec
}

// IsMarkup reports whether the text should be sent as SSML. This is a plain
// substring check; malformed markup is left for the remote side to reject.
func (r Request) IsMarkup() bool {
	return strings.Contains(r.Text, "<speak>")
}

// Voice is the value of the voice query parameter, e.g. "Nec_24000".
func (r Request) Voice() string {
	return r.VoiceID + "_" + r.SampleRate.String()
}
