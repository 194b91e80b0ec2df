// Package stats keeps best-effort counters of synthesis outcomes.
package stats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/speech"
)

// Snapshot is a point-in-time copy of the counters. Voices is empty unless
// per-voice tracking is enabled.
type Snapshot struct {
	Total  map[string]int64            `json:"total"`
	Voices map[string]map[string]int64 `json:"voices,omitempty"`
}

// Recorder persists outcome counters. Callers treat errors as non-fatal.
type Recorder interface {
	Record(ctx context.Context, call speech.Call) error
	Snapshot(ctx context.Context) (Snapshot, error)
}

// New builds the recorder selected by cfg.Backend. The returned close func
// releases backend connections; it is never nil.
func New(cfg config.StatsConfig) (Recorder, func() error, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, func() error { return nil }, nil
	case "memory":
		return NewMemory(WithTrackVoices(cfg.TrackVoices)), func() error { return nil }, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		opts := []RedisOption{WithPrefix(cfg.Prefix), WithRedisTrackVoices(cfg.TrackVoices)}
		if cfg.TTLMinutes > 0 {
			opts = append(opts, WithBucketTTL(minutes(cfg.TTLMinutes)))
		}
		return NewRedis(rdb, opts...), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown stats backend %q", cfg.Backend)
	}
}

// Observer adapts r to the gateway observer signature.
func Observer(r Recorder, log *slog.Logger) func(context.Context, speech.Call) {
	return func(ctx context.Context, call speech.Call) {
		if err := r.Record(context.WithoutCancel(ctx), call); err != nil {
			log.Warn("failed to record synthesis stats", slog.String("error", err.Error()))
		}
	}
}
