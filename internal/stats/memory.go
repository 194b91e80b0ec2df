package stats

import (
	"context"
	"sync"

	"github.com/loqalabs/salute-gateway/internal/speech"
)

// Memory keeps counters in process. It never expires anything and is meant
// for single-node deployments and tests.
type Memory struct {
	mu      sync.Mutex
	total   map[string]int64
	byVoice map[string]map[string]int64

	trackVoices bool
}

type MemoryOption func(*Memory)

func WithTrackVoices(track bool) MemoryOption {
	return func(m *Memory) { m.trackVoices = track }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		total:   make(map[string]int64),
		byVoice: make(map[string]map[string]int64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Record(_ context.Context, call speech.Call) error {
	outcome := call.Outcome.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total[outcome]++
	if m.trackVoices && call.VoiceID != "" {
		v, ok := m.byVoice[call.VoiceID]
		if !ok {
			v = make(map[string]int64)
			m.byVoice[call.VoiceID] = v
		}
		v[outcome]++
	}
	return nil
}

func (m *Memory) Snapshot(context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Snapshot{Total: make(map[string]int64, len(m.total))}
	for k, v := range m.total {
		out.Total[k] = v
	}
	if m.trackVoices {
		out.Voices = make(map[string]map[string]int64, len(m.byVoice))
		for voice, counts := range m.byVoice {
			c := make(map[string]int64, len(counts))
			for k, v := range counts {
				c[k] = v
			}
			out.Voices[voice] = c
		}
	}
	return out, nil
}
