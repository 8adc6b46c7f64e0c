// Package ratelimit bounds how fast and how many model turns one client
// may run. State is in memory and per process.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

type Config struct {
	// RPS and Burst shape a token bucket per client. Zero disables it.
	RPS   float64
	Burst int

	// MaxConcurrent caps in-flight turns per client. Zero disables it.
	MaxConcurrent int

	// Bounds for the client map.
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*clientLimiter
}

type clientLimiter struct {
	mu       sync.Mutex
	tb       tokenBucket
	sem      chan struct{}
	lastSeen time.Time
}

type tokenBucket struct {
	tokens float64
	last   time.Time
	init   bool
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*clientLimiter),
	}
}

// Permit is held for the duration of one turn.
type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

// Decision is the outcome of Acquire. RetryAfter is in whole seconds.
type Decision struct {
	Allowed    bool
	RetryAfter int
	// Busy is set when the concurrency cap, not the rate, denied the turn.
	Busy   bool
	Permit *Permit
}

// Acquire admits one turn for client. Callers must Release the permit of
// an allowed decision.
func (l *Limiter) Acquire(client string, now time.Time) Decision {
	if l == nil {
		return Decision{Allowed: true, Permit: &Permit{}}
	}
	if client == "" {
		client = "anonymous"
	}

	cl := l.getOrCreate(client, now)

	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		if ok, retryAfter := cl.allowToken(now, l.cfg.RPS, l.cfg.Burst); !ok {
			return Decision{RetryAfter: retryAfter}
		}
	}

	if l.cfg.MaxConcurrent > 0 {
		select {
		case cl.sem <- struct{}{}:
			return Decision{Allowed: true, Permit: &Permit{release: func() { <-cl.sem }}}
		default:
			return Decision{RetryAfter: 1, Busy: true}
		}
	}
	return Decision{Allowed: true, Permit: &Permit{}}
}

// Len reports how many clients are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) getOrCreate(client string, now time.Time) *clientLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.m[client]; ok {
		cl.lastSeen = now
		return cl
	}

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// Still full: evict an idle entry so memory stays bounded.
		if len(l.m) >= l.cfg.MaxEntries {
			for k, v := range l.m {
				if len(v.sem) == 0 {
					delete(l.m, k)
					break
				}
			}
		}
	}

	cl := &clientLimiter{
		sem:      make(chan struct{}, max(1, l.cfg.MaxConcurrent)),
		lastSeen: now,
	}
	l.m[client] = cl
	return cl
}

func (l *Limiter) gcLocked(now time.Time) {
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL && len(v.sem) == 0 {
			delete(l.m, k)
		}
	}
}

func (cl *clientLimiter) allowToken(now time.Time, rps float64, burst int) (bool, int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	capacity := float64(burst)
	if !cl.tb.init {
		cl.tb = tokenBucket{tokens: capacity, last: now, init: true}
	}

	if elapsed := now.Sub(cl.tb.last).Seconds(); elapsed > 0 {
		cl.tb.tokens = math.Min(capacity, cl.tb.tokens+elapsed*rps)
		cl.tb.last = now
	}

	if cl.tb.tokens >= 1.0 {
		cl.tb.tokens--
		return true, 0
	}

	retryAfter := int(math.Ceil((1.0 - cl.tb.tokens) / rps))
	return false, max(1, retryAfter)
}
