package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/referral-onboarding/internal/config"
	"github.com/referral-onboarding/internal/transport/http/handler"
	appmiddleware "github.com/referral-onboarding/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limiter := deps.Limiter
	if limiter == nil {
		// 5 requests/second, burst of 10.
		limiter = appmiddleware.NewRateLimiter(rate.Limit(5), 10)
	}

	healthH := handler.NewHealthHandler(deps.Registry)
	onboardingH := handler.NewOnboardingHandler(deps.Registry)
	attributionH := handler.NewAttributionHandler(deps.Attribution)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Visitor(deps.Tokens, cfg.AppEnv == "production"))
			r.Use(appmiddleware.CaptureAttribution(deps.Attribution))

			r.Post("/onboarding", onboardingH.Create)
			r.Route("/onboarding/{id}", func(r chi.Router) {
				r.Get("/", onboardingH.Get)
				r.Delete("/", onboardingH.Delete)
				r.Get("/events", onboardingH.Events)
				r.With(limiter.Limit).Post("/phone", onboardingH.SubmitPhone)
				r.Post("/code", onboardingH.SubmitCode)
				r.With(limiter.Limit).Post("/resend", onboardingH.Resend)
				r.Post("/back", onboardingH.Back)
				r.Put("/channel", onboardingH.SelectChannel)
				r.With(limiter.Limit).Post("/resend-link", onboardingH.ResendLink)
			})

			r.Get("/attribution", attributionH.Get)
			r.Post("/attribution", attributionH.Capture)
			r.Post("/attribution/validate", attributionH.Validate)
			r.Delete("/attribution", attributionH.Clear)
		})
	})

	return r
}
