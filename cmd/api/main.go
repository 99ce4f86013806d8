package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/referral-onboarding/internal/application/attribution"
	"github.com/referral-onboarding/internal/application/delivery"
	"github.com/referral-onboarding/internal/application/onboarding"
	"github.com/referral-onboarding/internal/application/otp"
	"github.com/referral-onboarding/internal/application/verify"
	"github.com/referral-onboarding/internal/config"
	"github.com/referral-onboarding/internal/infrastructure/backend"
	"github.com/referral-onboarding/internal/infrastructure/dynamo"
	jwtinfra "github.com/referral-onboarding/internal/infrastructure/jwt"
	"github.com/referral-onboarding/internal/infrastructure/memory"
	transporthttp "github.com/referral-onboarding/internal/transport/http"
	"github.com/referral-onboarding/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable attribution slots; without DynamoDB only the in-memory copy is kept.
	attrSettings := attribution.Settings{
		Secondary: memory.NewSlotStore(cfg.AttributionFallbackTTL, nil),
		TTL:       cfg.AttributionTTL,
		Params:    cfg.AttributionParams,
	}
	if dynamoClient, err := dynamo.NewClient(ctx, cfg); err == nil {
		dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
		attrSettings.Primary = dynamo.NewAttributionRepo(dynamoClient, cfg.DynamoTables.Attributions)
	} else {
		log.Printf("WARN: DynamoDB not available, attribution is memory only: %v", err)
	}
	attrSvc := attribution.NewService(attrSettings)

	api := backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout)
	registry := onboarding.NewRegistry(onboarding.Deps{
		Sender:   otp.NewSender(api),
		Verifier: verify.NewVerifier(api),
		Links:    api,
		NewPoller: func() onboarding.Poller {
			return delivery.NewPoller(api,
				delivery.WithInterval(cfg.PollInterval),
				delivery.WithMaxAttempts(cfg.PollAttempts),
			)
		},
	}, onboarding.WithIdleTimeout(cfg.SessionIdleTimeout))
	registryDone := make(chan struct{})
	go func() {
		registry.Run(ctx)
		close(registryDone)
	}()

	tokens, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("visitor tokens: %v", err)
	}

	// 5 requests/second, burst of 10.
	limiter := middleware.NewRateLimiter(rate.Limit(5), 10)
	defer limiter.Close()

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Registry:    registry,
		Attribution: attrSvc,
		Tokens:      tokens,
		Limiter:     limiter,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.AppPort),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /events streams for the life of a session.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, backend=%s)", cfg.AppPort, cfg.AppEnv, cfg.BackendBaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
		os.Exit(1)
	}
	<-registryDone
	log.Println("Server stopped")
}
