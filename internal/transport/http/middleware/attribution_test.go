package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/referral-onboarding/internal/application/attribution"
	"github.com/referral-onboarding/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVisitor(id string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), VisitorKey, id)))
	})
}

func TestCaptureAttribution_OnRouteEntry(t *testing.T) {
	svc := attribution.NewService(attribution.Settings{Primary: memory.NewSlotStore(time.Hour, nil)})
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := withVisitor("vis_1", CaptureAttribution(svc)(ok))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/onboarding?ref=jane-42", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	got := svc.For("vis_1").Read(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, "JANE-42", got.Code)

	// An invalid code leaves the existing attribution alone.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?ref=x", nil))
	assert.Equal(t, "JANE-42", svc.For("vis_1").Read(context.Background()).Code)
}

func TestCaptureAttribution_NoVisitorNoCapture(t *testing.T) {
	slots := memory.NewSlotStore(time.Hour, nil)
	svc := attribution.NewService(attribution.Settings{Primary: slots})
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	CaptureAttribution(svc)(ok).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?ref=ABC", nil))
	assert.Equal(t, 0, slots.Len())
}
