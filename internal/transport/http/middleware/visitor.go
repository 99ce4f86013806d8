package middleware

import (
	"context"
	"net/http"
	"time"

	jwtinfra "github.com/referral-onboarding/internal/infrastructure/jwt"
	"github.com/referral-onboarding/internal/pkg/id"
)

type contextKey string

const VisitorKey contextKey = "visitor"

// VisitorCookie carries the signed visitor token.
const VisitorCookie = "visitor"

// TokenProvider issues and checks visitor tokens.
type TokenProvider interface {
	Sign(visitorID string) (string, error)
	Verify(token string) (*jwtinfra.Claims, error)
	TTL() time.Duration
}

// Visitor identifies the browser behind a request. A missing or invalid
// cookie is replaced by a freshly issued visitor token.
func Visitor(tokens TokenProvider, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var visitorID string
			if c, err := r.Cookie(VisitorCookie); err == nil {
				if claims, err := tokens.Verify(c.Value); err == nil {
					visitorID = claims.VisitorID
				}
			}
			if visitorID == "" {
				visitorID = id.WithPrefix("vis_")
				tok, err := tokens.Sign(visitorID)
				if err != nil {
					writeJSONError(w, http.StatusInternalServerError, "could not issue visitor token")
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     VisitorCookie,
					Value:    tok,
					Path:     "/",
					MaxAge:   int(tokens.TTL().Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := context.WithValue(r.Context(), VisitorKey, visitorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VisitorFromContext extracts the visitor ID from the request context.
func VisitorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(VisitorKey).(string)
	return v, ok && v != ""
}
