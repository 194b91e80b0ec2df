package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/speech"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleCall(requestID string, outcome speech.Outcome, finished time.Time) speech.Call {
	c := speech.Call{
		RequestID:  requestID,
		Language:   "ru-RU",
		VoiceID:    "Nec",
		SampleRate: speech.Rate24000,
		Codec:      speech.CodecOpus,
		TextLength: 6,
		Outcome:    outcome,
		Latency:    420 * time.Millisecond,
		FinishedAt: finished,
	}
	if outcome == speech.OutcomeSuccess {
		c.AudioBytes = 2048
	} else {
		c.Error = "speech: deadline exceeded"
	}
	return c
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := es.Record(ctx, sampleCall("r1", speech.OutcomeSuccess, time.Now())); err != nil {
		t.Fatalf("record on ephemeral store: %v", err)
	}
	entries, err := es.Recent(ctx, 10)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected nothing journaled, got %v %v", entries, err)
	}
}

func TestRecordAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "journal.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	es.Observe(context.Background(), sampleCall("r1", speech.OutcomeSuccess, base))
	es.Observe(context.Background(), sampleCall("r2", speech.OutcomeTimeout, base.Add(time.Second)))

	entries, err := es.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RequestID != "r2" || entries[0].Outcome != "timeout" || entries[0].Error == "" {
		t.Fatalf("unexpected newest entry: %+v", entries[0])
	}
	if entries[1].AudioBytes != 2048 || entries[1].LatencyMS != 420 || entries[1].Voice != "Nec" {
		t.Fatalf("unexpected oldest entry: %+v", entries[1])
	}
	if !entries[1].FinishedAt.Equal(base) {
		t.Fatalf("expected finished_at %s, got %s", base, entries[1].FinishedAt)
	}

	counts, err := es.OutcomeCounts(context.Background(), base)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["success"] != 1 || counts["timeout"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestPruneByDaysAndRows(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "journal.db"), RetentionMode: "persistent", RetentionDays: 1, MaxRows: 2}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	es.clock = func() time.Time { return now }

	calls := []speech.Call{
		sampleCall("old", speech.OutcomeSuccess, old),
		sampleCall("n1", speech.OutcomeSuccess, now.Add(-3*time.Minute)),
		sampleCall("n2", speech.OutcomeSuccess, now.Add(-2*time.Minute)),
		sampleCall("n3", speech.OutcomeSuccess, now.Add(-time.Minute)),
	}
	for _, c := range calls {
		if err := es.Record(context.Background(), c); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := es.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after prune, got %d", len(entries))
	}
	if entries[0].RequestID != "n3" || entries[1].RequestID != "n2" {
		t.Fatalf("expected newest rows kept, got %s %s", entries[0].RequestID, entries[1].RequestID)
	}
}
