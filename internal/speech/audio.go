package speech

import (
	"bytes"
	"time"

	"github.com/go-audio/wav"
)

// AudioDuration returns the playback length of a wav payload. It reports
// false for ogg payloads and for raw pcm16 bodies that carry no RIFF header.
func AudioDuration(container string, audio []byte) (time.Duration, bool) {
	if container != "wav" || len(audio) == 0 {
		return 0, false
	}
	if !wav.NewDecoder(bytes.NewReader(audio)).IsValidFile() {
		return 0, false
	}
	d, err := wav.NewDecoder(bytes.NewReader(audio)).Duration()
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
