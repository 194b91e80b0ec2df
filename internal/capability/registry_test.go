package capability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/salute-gateway/internal/bus"
	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/natsserver"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	cfg := config.Default().Bus
	cfg.Enabled = true
	cfg.Port = -1
	cfg.StoreDir = ""
	srv, err := natsserver.Start(cfg, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg.Servers = []string{srv.ClientURL()}
	client, err := bus.Connect(context.Background(), cfg, "capability-test", newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestSpeechCapabilities(t *testing.T) {
	caps := SpeechCapabilities(config.Default().Speech, "cloud")
	if len(caps) != 1 || caps[0].Name != SpeechSynthesize {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}
	attrs := caps[0].Attributes
	if attrs["languages"] != "ru-RU,en-US" {
		t.Fatalf("unexpected languages %q", attrs["languages"])
	}
	if attrs["codecs"] != "wav16,pcm16,alaw,opus" || attrs["max_concurrency"] != "3" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
}

func TestRegistryTracksPeers(t *testing.T) {
	client := startBus(t)
	nodeCfg := config.Default().Node
	nodeCfg.HeartbeatInterval = 50
	nodeCfg.HeartbeatTimeout = 200

	local, err := NewRegistry(context.Background(), nodeCfg, SpeechCapabilities(config.Default().Speech, "mock"), client, newLogger())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(local.Close)

	if !local.Healthy() {
		t.Fatalf("expected local node healthy after announce")
	}
	if caps := local.LocalCapabilities(); len(caps) != 1 || caps[0].Tier != "mock" {
		t.Fatalf("unexpected local capabilities: %+v", caps)
	}

	peerCfg := nodeCfg
	peerCfg.ID = "salute-node-2"
	peer, err := NewRegistry(context.Background(), peerCfg, SpeechCapabilities(config.Default().Speech, "cloud"), client, newLogger())
	if err != nil {
		t.Fatalf("new peer registry: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		nodes := local.Query(WithCapabilityFilter(SpeechSynthesize))
		if len(nodes) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("peer never seen, nodes: %+v", nodes)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if got := local.Peers(); got != (Peers{Known: 2, Healthy: 2, Synthesizers: 2}) {
		t.Fatalf("unexpected peer summary: %+v", got)
	}

	peer.Close()
	deadline = time.Now().Add(3 * time.Second)
	for {
		nodes := local.Query(func(n NodeInfo) bool { return n.ID == "salute-node-2" && !n.Healthy })
		if len(nodes) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("peer never marked unhealthy")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if got := local.Peers(); got.Known != 2 || got.Healthy != 1 || got.Synthesizers != 1 {
		t.Fatalf("unexpected peer summary after close: %+v", got)
	}
}
