// Package attribution persists the single referral code a visitor arrived
// with, so that later, unrelated signup forms can credit the referrer.
//
// A Store never returns an error: any backend failure degrades to the
// secondary backend and, failing that, to "no attribution".
package attribution

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/pkg/clock"
)

const (
	DefaultTTL = 30 * 24 * time.Hour
)

// DefaultParams are the query parameters inspected on route entry.
var DefaultParams = []string{"ref", "referral"}

// SlotBackend persists one record per slot key. Load returns an error
// wrapping domain.ErrNotFound when the slot is empty.
type SlotBackend interface {
	Load(ctx context.Context, key string) (*domain.AttributionRecord, error)
	Save(ctx context.Context, rec *domain.AttributionRecord) error
	Delete(ctx context.Context, key string) error
}

// Settings wires the backends shared by every Store.
type Settings struct {
	Primary   SlotBackend // nil when durable storage is unavailable
	Secondary SlotBackend
	Clock     clock.Clock
	TTL       time.Duration
	Params    []string
}

// Service hands out Stores bound to a slot key.
type Service struct {
	s Settings
}

func NewService(s Settings) *Service {
	if s.Clock == nil {
		s.Clock = clock.Real()
	}
	if s.TTL <= 0 {
		s.TTL = DefaultTTL
	}
	if len(s.Params) == 0 {
		s.Params = DefaultParams
	}
	return &Service{s: s}
}

// For returns the Store for one visitor's slot.
func (svc *Service) For(key string) *Store {
	return &Store{key: key, Settings: svc.s}
}

// Store is the attribution slot of a single visitor.
type Store struct {
	Settings
	key string
}

// IsValidFormat reports whether code is an acceptable referral code
// (3–20 characters of [A-Z0-9-], case-insensitive).
func IsValidFormat(code string) bool {
	return domain.IsValidReferralCode(code)
}

// Capture normalizes raw and, when valid, overwrites the slot with a record
// sourced from a URL. Invalid input returns nil and leaves the slot intact.
func (s *Store) Capture(ctx context.Context, raw string) *domain.AttributionRecord {
	return s.capture(ctx, raw, domain.SourceURL)
}

// CaptureManual is Capture for a code typed into a form.
func (s *Store) CaptureManual(ctx context.Context, raw string) *domain.AttributionRecord {
	return s.capture(ctx, raw, domain.SourceManual)
}

// CaptureFromURL captures the first recognized query parameter holding a
// valid code.
func (s *Store) CaptureFromURL(ctx context.Context, u *url.URL) *domain.AttributionRecord {
	if u == nil {
		return nil
	}
	q := u.Query()
	for _, p := range s.Params {
		if v := q.Get(p); v != "" {
			if rec := s.Capture(ctx, v); rec != nil {
				return rec
			}
		}
	}
	return nil
}

func (s *Store) capture(ctx context.Context, raw string, src domain.AttributionSource) *domain.AttributionRecord {
	if !IsValidFormat(raw) {
		return nil
	}
	now := s.Clock.Now().UTC()
	rec := &domain.AttributionRecord{
		SlotKey:       s.key,
		Code:          domain.NormalizeReferralCode(raw),
		CapturedAt:    now,
		ExpiresAt:     now.Add(s.TTL),
		Source:        src,
		ExpiresAtUnix: now.Add(s.TTL).Unix(),
	}

	if s.Primary != nil {
		err := s.Primary.Save(ctx, rec)
		if err == nil {
			// The secondary may hold an older capture; one slot only.
			s.deleteQuiet(ctx, s.Secondary, "secondary")
			slog.Info("attribution captured", "slot", s.key, "code", rec.Code, "source", src)
			return rec
		}
		slog.Warn("primary attribution store write failed, using secondary", "slot", s.key, "err", err)
		// An older primary record must not shadow this capture.
		s.deleteQuiet(ctx, s.Primary, "primary")
	}
	if s.Secondary == nil {
		return nil
	}
	if err := s.Secondary.Save(ctx, rec); err != nil {
		slog.Warn("secondary attribution store write failed", "slot", s.key, "err", err)
		return nil
	}
	slog.Info("attribution captured", "slot", s.key, "code", rec.Code, "source", src, "store", "secondary")
	return rec
}

// Read returns the live record, or nil. An expired record is deleted as a
// side effect.
func (s *Store) Read(ctx context.Context) *domain.AttributionRecord {
	rec := s.load(ctx)
	if rec == nil {
		return nil
	}
	rec.ExpiresAt = rec.CapturedAt.Add(s.TTL)
	if rec.Expired(s.Clock.Now()) {
		slog.Info("attribution expired", "slot", s.key, "code", rec.Code, "captured_at", rec.CapturedAt)
		s.Clear(ctx)
		return nil
	}
	return rec
}

// load returns the most recent capture held by either backend.
func (s *Store) load(ctx context.Context) *domain.AttributionRecord {
	primary := s.loadFrom(ctx, s.Primary, "primary")
	secondary := s.loadFrom(ctx, s.Secondary, "secondary")
	switch {
	case primary == nil:
		return secondary
	case secondary == nil:
		return primary
	case secondary.CapturedAt.After(primary.CapturedAt):
		return secondary
	}
	return primary
}

func (s *Store) loadFrom(ctx context.Context, b SlotBackend, name string) *domain.AttributionRecord {
	if b == nil {
		return nil
	}
	rec, err := b.Load(ctx, s.key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("attribution store read failed", "slot", s.key, "store", name, "err", err)
		}
		return nil
	}
	return rec
}

// Clear removes the record from both backends. Idempotent.
func (s *Store) Clear(ctx context.Context) {
	s.deleteQuiet(ctx, s.Primary, "primary")
	s.deleteQuiet(ctx, s.Secondary, "secondary")
}

func (s *Store) deleteQuiet(ctx context.Context, b SlotBackend, name string) {
	if b == nil {
		return
	}
	if err := b.Delete(ctx, s.key); err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("attribution delete failed", "slot", s.key, "store", name, "err", err)
	}
}
