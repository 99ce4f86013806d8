package http

import (
	"github.com/referral-onboarding/internal/application/attribution"
	"github.com/referral-onboarding/internal/application/onboarding"
	"github.com/referral-onboarding/internal/transport/http/middleware"
)

// Deps holds the application services the router requires.
type Deps struct {
	Registry    *onboarding.Registry
	Attribution *attribution.Service
	Tokens      middleware.TokenProvider
	// Limiter guards the endpoints that cause the backend to send a message.
	// Owned by the caller, which should Close it on shutdown.
	Limiter *middleware.RateLimiter
}
