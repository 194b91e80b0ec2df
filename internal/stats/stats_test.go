package stats

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/speech"
)

func call(voice string, outcome speech.Outcome, at time.Time) speech.Call {
	return speech.Call{VoiceID: voice, Outcome: outcome, FinishedAt: at}
}

func setupRedis(t *testing.T, opts ...RedisOption) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, opts...), mr
}

func TestMemoryCounts(t *testing.T) {
	m := NewMemory(WithTrackVoices(true))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.Record(ctx, call("Nec", speech.OutcomeSuccess, now)))
	require.NoError(t, m.Record(ctx, call("Nec", speech.OutcomeTimeout, now)))
	require.NoError(t, m.Record(ctx, call("Kin", speech.OutcomeSuccess, now)))

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Total["success"])
	assert.Equal(t, int64(1), snap.Total["timeout"])
	assert.Equal(t, int64(1), snap.Voices["Nec"]["timeout"])
	assert.Equal(t, int64(1), snap.Voices["Kin"]["success"])
}

func TestMemoryWithoutVoices(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Record(context.Background(), call("Nec", speech.OutcomeAuthFailure, time.Now())))

	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Total["auth_failure"])
	assert.Nil(t, snap.Voices)
}

func TestRedisRecord(t *testing.T) {
	r, mr := setupRedis(t, WithPrefix("test:stats:"), WithBucketTTL(time.Hour), WithRedisTrackVoices(true))
	ctx := context.Background()
	at := time.Date(2025, 5, 1, 10, 30, 15, 0, time.UTC)

	require.NoError(t, r.Record(ctx, call("Nec", speech.OutcomeSuccess, at)))
	require.NoError(t, r.Record(ctx, call("Nec", speech.OutcomeSynthesisFailure, at)))
	require.NoError(t, r.Record(ctx, call("Bys", speech.OutcomeSuccess, at.Add(time.Minute))))

	assert.Equal(t, "2", mr.HGet("test:stats:total", "success"))
	assert.Equal(t, "1", mr.HGet("test:stats:minute:202505011030", "synthesis_failure"))
	assert.Equal(t, time.Hour, mr.TTL("test:stats:minute:202505011030"))
	assert.False(t, mr.Exists("test:stats:route"))

	minute, err := r.Minute(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"success": 1, "synthesis_failure": 1}, minute)

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Total["success"])
	assert.Equal(t, int64(1), snap.Voices["Bys"]["success"])
	assert.Equal(t, int64(1), snap.Voices["Nec"]["synthesis_failure"])
}

func TestRedisRecordFailsWhenServerGone(t *testing.T) {
	r, mr := setupRedis(t)
	mr.Close()

	err := r.Record(context.Background(), call("Nec", speech.OutcomeSuccess, time.Now()))
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	rec, closeFn, err := New(config.StatsConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, closeFn())

	rec, _, err = New(config.StatsConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, rec)

	mr := miniredis.RunT(t)
	rec, closeFn, err = New(config.StatsConfig{Backend: "redis", RedisAddr: mr.Addr(), Prefix: "p", TTLMinutes: 5})
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), call("Nec", speech.OutcomeSuccess, time.Now())))
	assert.Equal(t, "1", mr.HGet("p:total", "success"))
	assert.NoError(t, closeFn())

	_, _, err = New(config.StatsConfig{Backend: "bogus"})
	assert.Error(t, err)
}
