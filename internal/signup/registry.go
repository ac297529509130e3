package signup

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"signup-backend/internal/shared/metrics"
	"signup-backend/internal/shared/telemetry"
)

const DefaultSessionTTL = 2 * time.Hour

// Registry holds the open signup sessions and closes idle ones.
type Registry struct {
	template Options
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type entry struct {
	form     *Form
	lastSeen time.Time
}

// NewRegistry returns a registry whose forms are built from template.
// SessionID in template is ignored.
func NewRegistry(template Options, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		template: template,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*entry),
		stopCh:   make(chan struct{}),
	}
}

// Create opens a new session.
func (r *Registry) Create() *Form {
	opts := r.template
	opts.SessionID = uuid.NewString()
	form := New(opts)

	r.mu.Lock()
	r.sessions[form.ID()] = &entry{form: form, lastSeen: r.now()}
	r.mu.Unlock()

	metrics.SessionOpened()
	telemetry.Info("signup.session.opened", map[string]any{"session_id": form.ID()})
	return form
}

// Get returns the session and marks it as recently used.
func (r *Registry) Get(id string) (*Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.form, nil
}

// Close tears down a session.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	r.closeForm(e.form, "closed")
	return nil
}

// Len reports the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many it closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var stale []*Form

	r.mu.Lock()
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.form)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, form := range stale {
		r.closeForm(form, "expired")
	}
	return len(stale)
}

// Start runs the sweeper every interval until Stop.
func (r *Registry) Start(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	r.wg.Add(1)
	go r.run(interval)
	telemetry.Info("signup.sweeper.started", map[string]any{
		"interval_ms": interval.Milliseconds(),
		"ttl_ms":      r.ttl.Milliseconds(),
	})
}

func (r *Registry) run(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				telemetry.Info("signup.sweeper.closed", map[string]any{"count": n})
			}
		}
	}
}

// Stop halts the sweeper and closes every open session.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()

		r.mu.Lock()
		forms := make([]*Form, 0, len(r.sessions))
		for id, e := range r.sessions {
			forms = append(forms, e.form)
			delete(r.sessions, id)
		}
		r.mu.Unlock()

		for _, form := range forms {
			r.closeForm(form, "shutdown")
		}
	})
}

func (r *Registry) closeForm(form *Form, reason string) {
	form.Close()
	metrics.SessionClosed()
	telemetry.Info("signup.session.closed", map[string]any{
		"session_id": form.ID(),
		"reason":     reason,
	})
}
