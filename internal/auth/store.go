package auth

import (
	"sync/atomic"
	"time"
)

// AccessToken is a bearer token together with the time it was issued.
type AccessToken struct {
	Value    string
	IssuedAt time.Time
}

// State is the lifecycle position of a Store.
type State int

const (
	StateEmpty State = iota
	StateValid
	StateStale
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateValid:
		return "valid"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Store holds at most one AccessToken. Writes are serialised by the Manager
// that owns the store; reads may happen at any time.
type Store struct {
	current atomic.Pointer[AccessToken]
}

// Get returns the token if it is valid at now.
func (s *Store) Get(now time.Time, ttl time.Duration) (AccessToken, bool) {
	tok := s.current.Load()
	if tok == nil || !fresh(*tok, now, ttl) {
		return AccessToken{}, false
	}
	return *tok, true
}

// Replace swaps in a new token. An empty value empties the store.
func (s *Store) Replace(tok AccessToken) {
	if tok.Value == "" {
		s.Reset()
		return
	}
	s.current.Store(&tok)
}

// Reset drops whatever token is held.
func (s *Store) Reset() {
	s.current.Store(nil)
}

// State reports the lifecycle state at now.
func (s *Store) State(now time.Time, ttl time.Duration) State {
	tok := s.current.Load()
	switch {
	case tok == nil:
		return StateEmpty
	case fresh(*tok, now, ttl):
		return StateValid
	default:
		return StateStale
	}
}

// fresh treats a token issued in the future (clock stepped back) as stale.
func fresh(tok AccessToken, now time.Time, ttl time.Duration) bool {
	if tok.Value == "" || tok.IssuedAt.After(now) {
		return false
	}
	return now.Sub(tok.IssuedAt) < ttl
}
