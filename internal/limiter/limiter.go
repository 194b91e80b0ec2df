// Package limiter bounds how many synthesis calls may be in flight at once.
//
// The ceiling comes from the caller's SaluteSpeech service tier and is fixed
// for the lifetime of a Limiter.
package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting admission gate.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// New creates a limiter admitting at most capacity concurrent holders.
func New(capacity int) (*Limiter, error) {
	if capacity <= 0 {
		return nil, errors.New("limiter capacity must be >= 1")
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}, nil
}

// Acquire blocks until a slot is free or ctx is done. On success the returned
// release must be called once; extra calls are no-ops.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return func() {}, err
	}
	l.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		})
	}, nil
}

// TryAcquire takes a slot only if one is immediately free.
func (l *Limiter) TryAcquire() (release func(), ok bool) {
	if !l.sem.TryAcquire(1) {
		return func() {}, false
	}
	l.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		})
	}, true
}

// Capacity returns the configured ceiling.
func (l *Limiter) Capacity() int { return l.capacity }

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int { return int(l.inFlight.Load()) }
