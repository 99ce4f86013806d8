package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtinfra "github.com/referral-onboarding/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureVisitor(seen *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen, _ = VisitorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestVisitor_IssuesCookieOnFirstRequest(t *testing.T) {
	p := jwtinfra.NewProviderWithSecret([]byte("k"), time.Hour)
	var seen string
	h := Visitor(p, true)(captureVisitor(&seen))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, strings.HasPrefix(seen, "vis_"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, VisitorCookie, c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, 3600, c.MaxAge)

	claims, err := p.Verify(c.Value)
	require.NoError(t, err)
	assert.Equal(t, seen, claims.VisitorID)
}

func TestVisitor_ReusesValidCookie(t *testing.T) {
	p := jwtinfra.NewProviderWithSecret([]byte("k"), time.Hour)
	tok, err := p.Sign("vis_known")
	require.NoError(t, err)

	var seen string
	h := Visitor(p, false)(captureVisitor(&seen))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookie, Value: tok})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "vis_known", seen)
	assert.Empty(t, rec.Result().Cookies())
}

func TestVisitor_ReplacesForgedCookie(t *testing.T) {
	forged, err := jwtinfra.NewProviderWithSecret([]byte("other"), time.Hour).Sign("vis_forged")
	require.NoError(t, err)

	var seen string
	h := Visitor(jwtinfra.NewProviderWithSecret([]byte("k"), time.Hour), false)(captureVisitor(&seen))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookie, Value: forged})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEqual(t, "vis_forged", seen)
	assert.Len(t, rec.Result().Cookies(), 1)
}
