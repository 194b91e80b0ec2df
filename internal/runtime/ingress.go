package runtime

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/loqalabs/salute-gateway/internal/config"
)

// ingressLimiter is a per-client token bucket in front of the HTTP API. It
// protects the vendor quota from a single noisy client; the concurrency
// ceiling still applies behind it.
type ingressLimiter struct {
	mu        sync.Mutex
	entries   map[string]*ingressEntry
	rps       rate.Limit
	burst     int
	keyHeader string
	trustXFF  bool
	idleTTL   time.Duration
	clock     func() time.Time
}

type ingressEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIngressLimiter(cfg config.IngressConfig) *ingressLimiter {
	return &ingressLimiter{
		entries:   make(map[string]*ingressEntry),
		rps:       rate.Limit(cfg.RPS),
		burst:     cfg.Burst,
		keyHeader: cfg.KeyHeader,
		trustXFF:  cfg.TrustXFF,
		idleTTL:   15 * time.Minute,
		clock:     time.Now,
	}
}

func (l *ingressLimiter) key(r *http.Request) string {
	if l.keyHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(l.keyHeader)); v != "" {
			return "hdr:" + v
		}
	}
	if l.trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return "ip:" + ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (l *ingressLimiter) limiter(key string) *rate.Limiter {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if ent, ok := l.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.entries[key] = &ingressEntry{lim: lim, lastSeen: now}
	return lim
}

func (l *ingressLimiter) cleanup() {
	cutoff := l.clock().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

func (l *ingressLimiter) runJanitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.cleanup()
		}
	}
}

func (l *ingressLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := l.limiter(l.key(r)).ReserveN(l.clock(), 1)
		if !res.OK() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		if delay := res.DelayFrom(l.clock()); delay > 0 {
			res.CancelAt(l.clock())
			w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
