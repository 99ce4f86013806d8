package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/pkg/clock"
	"github.com/referral-onboarding/internal/pkg/id"
)

const DefaultIdleTimeout = 30 * time.Minute

// Registry holds one Controller per onboarding session. Sessions not touched
// within the idle timeout are closed by Run.
type Registry struct {
	deps  Deps
	idle  time.Duration
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ctrl     *Controller
	owner    string
	lastSeen time.Time
}

type RegistryOption func(*Registry)

func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idle = d
		}
	}
}

func WithRegistryClock(c clock.Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

func NewRegistry(d Deps, opts ...RegistryOption) *Registry {
	r := &Registry{
		deps:    d,
		idle:    DefaultIdleTimeout,
		clock:   clock.Real(),
		entries: make(map[string]*entry),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create starts a fresh session in the phone step, owned by owner.
func (r *Registry) Create(mode domain.Mode, owner string) *Controller {
	ctrl := NewController(id.WithPrefix("ob_"), mode, r.deps)
	r.mu.Lock()
	r.entries[ctrl.ID()] = &entry{ctrl: ctrl, owner: owner, lastSeen: r.clock.Now()}
	n := len(r.entries)
	r.mu.Unlock()
	slog.Info("onboarding started", "onboarding_id", ctrl.ID(), "mode", mode, "active", n)
	return ctrl
}

// Get returns the session and marks it as recently used. A session owned
// by someone else is reported as not found.
func (r *Registry) Get(onboardingID, owner string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[onboardingID]
	if !ok || e.owner != owner {
		return nil, fmt.Errorf("onboarding %s: %w", onboardingID, domain.ErrNotFound)
	}
	e.lastSeen = r.clock.Now()
	return e.ctrl, nil
}

// Close removes the session and tears it down.
func (r *Registry) Close(onboardingID, owner string) error {
	r.mu.Lock()
	e, ok := r.entries[onboardingID]
	if ok && e.owner != owner {
		ok = false
	}
	if ok {
		delete(r.entries, onboardingID)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("onboarding %s: %w", onboardingID, domain.ErrNotFound)
	}
	e.ctrl.Close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes every session idle for longer than the timeout and returns
// how many were closed.
func (r *Registry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.idle)
	var idle []*Controller
	r.mu.Lock()
	for k, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.ctrl)
			delete(r.entries, k)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	if len(idle) > 0 {
		slog.Info("idle onboarding sessions closed", "count", len(idle))
	}
	return len(idle)
}

// Run sweeps on a fixed interval until ctx is done, then closes everything.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := r.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Shutdown()
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Shutdown closes every session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range all {
		e.ctrl.Close()
	}
}
