package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket refilled at rate tokens per second
type Limiter struct {
	bucket *rate.Limiter
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}

type entry struct {
	limiter  *Limiter
	lastSeen time.Time
}

// ClientLimiters hands out one Limiter per key (client IP, connection id)
// and forgets keys that have been quiet for a while.
type ClientLimiters struct {
	limiters        map[string]*entry
	rate            float64
	burst           int
	mu              sync.Mutex
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

func NewClientLimiters(rate float64, burst int) *ClientLimiters {
	cl := &ClientLimiters{
		limiters:        make(map[string]*entry),
		rate:            rate,
		burst:           burst,
		cleanupInterval: 5 * time.Minute,
		stop:            make(chan struct{}),
	}
	go cl.cleanup()
	return cl
}

func (cl *ClientLimiters) Get(key string) *Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	e, ok := cl.limiters[key]
	if !ok {
		e = &entry{limiter: NewLimiter(cl.rate, cl.burst)}
		cl.limiters[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

func (cl *ClientLimiters) Allow(key string) bool {
	return cl.Get(key).Allow()
}

func (cl *ClientLimiters) Remove(key string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.limiters, key)
}

func (cl *ClientLimiters) Len() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.limiters)
}

func (cl *ClientLimiters) Stop() {
	cl.stopOnce.Do(func() { close(cl.stop) })
}

func (cl *ClientLimiters) cleanup() {
	ticker := time.NewTicker(cl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.stop:
			return
		case <-ticker.C:
			cl.sweep(time.Now().Add(-cl.cleanupInterval))
		}
	}
}

// sweep drops keys not seen since cutoff
func (cl *ClientLimiters) sweep(cutoff time.Time) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	removed := 0
	for key, e := range cl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(cl.limiters, key)
			removed++
		}
	}
	return removed
}
