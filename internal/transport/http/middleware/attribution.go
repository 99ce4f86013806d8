package middleware

import (
	"net/http"

	"github.com/referral-onboarding/internal/application/attribution"
)

// CaptureAttribution records a referral code carried in the query string of
// any route. Must run after Visitor. Invalid codes are ignored.
func CaptureAttribution(svc *attribution.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != "" {
				if visitorID, ok := VisitorFromContext(r.Context()); ok {
					svc.For(visitorID).CaptureFromURL(r.Context(), r.URL)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
