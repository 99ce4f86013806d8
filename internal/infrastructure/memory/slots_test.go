package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := NewSlotStore(time.Hour, clock.Fake(time.Now()))

	require.NoError(t, s.Save(ctx, &domain.AttributionRecord{SlotKey: "v1", Code: "ABC"}))
	rec, err := s.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "ABC", rec.Code)

	require.NoError(t, s.Delete(ctx, "v1"))
	require.NoError(t, s.Delete(ctx, "v1"))
	_, err = s.Load(ctx, "v1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSlotStore_LifetimeEviction(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewSlotStore(24*time.Hour, clk)
	require.NoError(t, s.Save(ctx, &domain.AttributionRecord{SlotKey: "v1", Code: "ABC"}))

	clk.Advance(25 * time.Hour)
	_, err := s.Load(ctx, "v1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, 0, s.Len())
}

func TestSlotStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewSlotStore(0, nil)
	require.NoError(t, s.Save(ctx, &domain.AttributionRecord{SlotKey: "v1", Code: "ABC"}))
	rec, _ := s.Load(ctx, "v1")
	rec.Code = "MUTATED"
	again, _ := s.Load(ctx, "v1")
	assert.Equal(t, "ABC", again.Code)
}
