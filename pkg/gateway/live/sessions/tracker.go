// Package sessions tracks running live sessions so the server can cap
// them and drain them on shutdown.
package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Handle lets the tracker reach a running live session.
type Handle struct {
	Cancel func()
	Warn   func(code, message string) error
}

// Info describes one tracked session.
type Info struct {
	ID      string
	Started time.Time
}

type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*entry
	wg       sync.WaitGroup
	now      func() time.Time
}

type entry struct {
	handle  Handle
	started time.Time
	once    sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*entry), now: time.Now}
}

// Register tracks sessionID unconditionally. Registering an ID twice
// replaces the older entry.
func (t *Tracker) Register(sessionID string, h Handle) (unregister func()) {
	unregister, _ = t.TryRegister(sessionID, h, 0)
	return unregister
}

// TryRegister registers sessionID only while fewer than limit sessions
// are tracked. A limit <= 0 means no limit. The returned func is
// idempotent.
func (t *Tracker) TryRegister(sessionID string, h Handle, limit int) (unregister func(), ok bool) {
	if t == nil {
		return func() {}, true
	}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*entry)
	}
	if t.now == nil {
		t.now = time.Now
	}
	old, replacing := t.sessions[sessionID]
	if !replacing && limit > 0 && len(t.sessions) >= limit {
		t.mu.Unlock()
		return func() {}, false
	}
	e := &entry{handle: h, started: t.now()}
	t.sessions[sessionID] = e
	t.wg.Add(1)
	t.mu.Unlock()

	if replacing {
		t.release(sessionID, old)
	}
	return func() { t.release(sessionID, e) }, true
}

func (t *Tracker) release(sessionID string, e *entry) {
	e.once.Do(func() {
		t.mu.Lock()
		if t.sessions[sessionID] == e {
			delete(t.sessions, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Sessions lists tracked sessions, oldest first.
func (t *Tracker) Sessions() []Info {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	out := make([]Info, 0, len(t.sessions))
	for id, e := range t.sessions {
		out = append(out, Info{ID: id, Started: e.started})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].ID < out[j].ID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// WarnAll sends a warning frame to every session and reports how many
// were delivered.
func (t *Tracker) WarnAll(code, message string) (delivered int) {
	for _, h := range t.handles() {
		if h.Warn != nil && h.Warn(code, message) == nil {
			delivered++
		}
	}
	return delivered
}

// CancelAll ends every session. Sessions unregister themselves.
func (t *Tracker) CancelAll() (canceled int) {
	for _, h := range t.handles() {
		if h.Cancel != nil {
			h.Cancel()
			canceled++
		}
	}
	return canceled
}

// handles snapshots the handles so callbacks run without the lock.
func (t *Tracker) handles() []Handle {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Handle, 0, len(t.sessions))
	for _, e := range t.sessions {
		out = append(out, e.handle)
	}
	return out
}

// Wait blocks until every session has unregistered or ctx ends. It
// reports whether all sessions ended.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
