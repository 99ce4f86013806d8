// Package delivery confirms carrier-level delivery of a verification message
// by polling the backend on a fixed interval with a bounded attempt budget.
package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/infrastructure/backend"
	"github.com/referral-onboarding/internal/pkg/clock"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 10
)

// StatusAPI is the backend surface the poller requires.
type StatusAPI interface {
	DeliveryStatus(ctx context.Context, messageSid string) (*backend.DeliveryStatusResponse, error)
}

// Update reports the outcome of one poll. Status is WAITING_DELIVERY until
// the final update, which carries DELIVERED, DELIVERY_FAILED or
// DELIVERY_TIMEOUT.
type Update struct {
	MessageID   string
	Status      domain.VerificationStatus
	Attempt     int
	MaxAttempts int
}

// Poller owns at most one polling goroutine and its ticker.
type Poller struct {
	api         StatusAPI
	clock       clock.Clock
	interval    time.Duration
	maxAttempts int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

func WithClock(c clock.Clock) Option { return func(p *Poller) { p.clock = c } }

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func NewPoller(api StatusAPI, opts ...Option) *Poller {
	p := &Poller{
		api:         api,
		clock:       clock.Real(),
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start begins polling messageID, superseding any previous poll. The
// previous goroutine has released its ticker before the new one starts.
// onUpdate runs on the polling goroutine and is never invoked once ctx is
// cancelled or Stop has been called.
func (p *Poller) Start(ctx context.Context, messageID string, onUpdate func(Update)) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	prev := p.done
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	if prev != nil {
		<-prev
	}
	go p.run(runCtx, done, messageID, onUpdate)
}

// Stop cancels the active poll, if any. Safe to call repeatedly and from
// within onUpdate. It does not wait for the goroutine to exit; use Wait.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Wait blocks until the most recently started poll has exited.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Poller) run(ctx context.Context, done chan struct{}, messageID string, onUpdate func(Update)) {
	defer close(done)
	defer p.release(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status := p.poll(ctx, messageID, attempt)
		if status == domain.StatusWaitingDelivery && attempt == p.maxAttempts {
			status = domain.StatusDeliveryTimeout
			slog.Info("delivery confirmation timed out", "message_id", messageID, "attempts", attempt)
		}
		if ctx.Err() != nil {
			return
		}
		onUpdate(Update{MessageID: messageID, Status: status, Attempt: attempt, MaxAttempts: p.maxAttempts})
		if status.DeliveryTerminal() {
			return
		}
	}
}

// poll queries the backend once. Errors are swallowed and count as pending.
func (p *Poller) poll(ctx context.Context, messageID string, attempt int) domain.VerificationStatus {
	resp, err := p.api.DeliveryStatus(ctx, messageID)
	switch {
	case err != nil:
		slog.Debug("delivery status poll failed", "message_id", messageID, "attempt", attempt, "err", err)
	case resp.IsDelivered:
		return domain.StatusDelivered
	case resp.IsFailed:
		slog.Info("delivery failed", "message_id", messageID, "attempt", attempt)
		return domain.StatusDeliveryFailed
	}
	return domain.StatusWaitingDelivery
}

// release clears the cancel func when the exiting run is still the current
// one (its context is live), leaving the poller idle.
func (p *Poller) release(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() == nil && p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Active reports whether a poll is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
