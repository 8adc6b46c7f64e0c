// Package lifecycle holds the process drain state shared by /readyz, the
// live upgrade path and shutdown.
package lifecycle

import (
	"sync"
	"time"
)

// Lifecycle is safe for concurrent use. The zero value is serving.
type Lifecycle struct {
	mu    sync.Mutex
	since time.Time
	now   func() time.Time
}

// SetDraining flips the drain state. Draining again keeps the original
// timestamp.
func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case !draining:
		l.since = time.Time{}
	case l.since.IsZero():
		if l.now == nil {
			l.now = time.Now
		}
		l.since = l.now()
	}
}

func (l *Lifecycle) IsDraining() bool {
	_, ok := l.DrainingSince()
	return ok
}

// DrainingSince reports when draining began.
func (l *Lifecycle) DrainingSince() (time.Time, bool) {
	if l == nil {
		return time.Time{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.since, !l.since.IsZero()
}
