package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loqalabs/salute-gateway/internal/speech"
)

// Redis shares counters between gateway replicas. Layout under prefix:
//
//	<prefix>:total                  hash outcome -> count (never expires)
//	<prefix>:minute:<YYYYMMDDhhmm>  hash outcome -> count (expires after ttl)
//	<prefix>:voice:<id>             hash outcome -> count (when voices are tracked)
type Redis struct {
	rdb *redis.Client

	prefix      string
	ttl         time.Duration
	trackVoices bool
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if p := strings.Trim(prefix, ":"); p != "" {
			r.prefix = p
		}
	}
}

func WithBucketTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = d }
}

func WithRedisTrackVoices(track bool) RedisOption {
	return func(r *Redis) { r.trackVoices = track }
}

func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:    rdb,
		prefix: "salute:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Record(ctx context.Context, call speech.Call) error {
	if r == nil || r.rdb == nil {
		return nil
	}
	at := call.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	field := call.Outcome.String()

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, bucketKey, r.ttl)
	}

	if r.trackVoices && call.VoiceID != "" {
		voiceKey := r.prefix + ":voice:" + call.VoiceID
		pipe.HIncrBy(ctx, voiceKey, field, 1)
		if r.ttl > 0 {
			pipe.Expire(ctx, voiceKey, r.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

func (r *Redis) Snapshot(ctx context.Context) (Snapshot, error) {
	total, err := r.hash(ctx, r.prefix+":total")
	if err != nil {
		return Snapshot{}, err
	}
	out := Snapshot{Total: total}
	if !r.trackVoices {
		return out, nil
	}

	out.Voices = make(map[string]map[string]int64)
	iter := r.rdb.Scan(ctx, 0, r.prefix+":voice:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		counts, err := r.hash(ctx, key)
		if err != nil {
			return Snapshot{}, err
		}
		out.Voices[strings.TrimPrefix(key, r.prefix+":voice:")] = counts
	}
	if err := iter.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("scan voice stats: %w", err)
	}
	return out, nil
}

// Minute returns the counters of the bucket containing at.
func (r *Redis) Minute(ctx context.Context, at time.Time) (map[string]int64, error) {
	return r.hash(ctx, fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504")))
}

func (r *Redis) hash(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	out := make(map[string]int64, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
