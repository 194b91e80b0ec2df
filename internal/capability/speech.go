package capability

import (
	"strconv"
	"strings"

	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/speech"
	"github.com/loqalabs/salute-gateway/internal/voice"
)

const SpeechSynthesize = "speech.synthesize"

// SpeechCapabilities describes what this node can synthesize. Tier is the
// synthesis backend mode (cloud or mock).
func SpeechCapabilities(cfg config.SpeechConfig, mode string) []Capability {
	codecs := make([]string, 0, len(speech.Codecs()))
	for _, c := range speech.Codecs() {
		codecs = append(codecs, string(c))
	}
	rates := make([]string, 0, len(speech.SampleRates()))
	for _, r := range speech.SampleRates() {
		rates = append(rates, r.String())
	}

	return []Capability{{
		Name: SpeechSynthesize,
		Tier: mode,
		Attributes: map[string]string{
			"languages":        strings.Join(voice.Languages(), ","),
			"voices":           strings.Join(voice.IDs(), ","),
			"codecs":           strings.Join(codecs, ","),
			"sample_rates":     strings.Join(rates, ","),
			"default_voice":    cfg.Voice,
			"default_language": cfg.Language,
			"max_concurrency":  strconv.Itoa(cfg.ConcurrencyCeiling),
		},
	}}
}

// Peers summarises the nodes seen on the bus, this one included.
type Peers struct {
	Known        int `json:"known"`
	Healthy      int `json:"healthy"`
	Synthesizers int `json:"synthesizers"`
}

func (r *Registry) Peers() Peers {
	var p Peers
	speaks := WithCapabilityFilter(SpeechSynthesize)
	for _, n := range r.Query(nil) {
		p.Known++
		if !n.Healthy {
			continue
		}
		p.Healthy++
		if speaks(n) {
			p.Synthesizers++
		}
	}
	return p
}
