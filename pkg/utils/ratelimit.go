package utils

import (
	"time"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"
)

const (
	DEFAULT_LIMITER_IDLE = 10 * time.Minute

	// How many calls to Allow between sweeps of idle keys.
	LIMITER_SWEEP_INTERVAL = 512
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyLimiter applies a token bucket per key and forgets keys that have been
// idle for longer than idle. A nil KeyLimiter allows everything.
type KeyLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	hits    uint64
	entries map[string]*limiterEntry
	mutex   deadlock.Mutex
}

// NewKeyLimiter returns nil when perSecond or burst is not positive.
func NewKeyLimiter(perSecond float64, burst int, idle time.Duration) *KeyLimiter {
	if perSecond <= 0 || burst <= 0 {
		return nil
	}

	if idle <= 0 {
		idle = DEFAULT_LIMITER_IDLE
	}

	return &KeyLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
		entries: make(map[string]*limiterEntry),
	}
}

// entry must be called with the mutex held.
func (l *KeyLimiter) entry(key string, now time.Time) *limiterEntry {
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(l.limit, l.burst),
		}
		l.entries[key] = entry
	}
	entry.lastSeen = now

	l.hits++
	if l.hits%LIMITER_SWEEP_INTERVAL == 0 {
		l.sweep(now)
	}

	return entry
}

func (l *KeyLimiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.entry(key, now).limiter.AllowN(now, 1)
}

// Reserve takes the next token for key and returns how long the caller has
// to wait before using it.
func (l *KeyLimiter) Reserve(key string, now time.Time) time.Duration {
	if l == nil || key == "" {
		return 0
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	reservation := l.entry(key, now).limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return 0
	}
	return reservation.DelayFrom(now)
}

func (l *KeyLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idle)
	for key, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// Forget drops the bucket for key.
func (l *KeyLimiter) Forget(key string) {
	if l == nil {
		return
	}

	l.mutex.Lock()
	delete(l.entries, key)
	l.mutex.Unlock()
}

func (l *KeyLimiter) Len() int {
	if l == nil {
		return 0
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.entries)
}
