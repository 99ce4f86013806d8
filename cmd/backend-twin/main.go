package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/referral-onboarding/internal/config"
	"github.com/referral-onboarding/internal/infrastructure/sns"
	"github.com/referral-onboarding/internal/twin"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := twin.NewStore(twin.Settings{
		DeliverAfterPolls: cfg.TwinDeliverAfterPolls,
		WhatsAppIncapable: cfg.TwinWhatsAppIncapable,
		Undeliverable:     cfg.TwinUndeliverable,
		ReferralBaseURL:   cfg.TwinReferralBaseURL,
	})

	// Codes are only really texted when explicitly enabled.
	var sms sns.SMSSender
	if cfg.TwinSNSEnable {
		sender, err := sns.NewSender(ctx, cfg)
		if err != nil {
			log.Printf("WARN: SNS sender not available, codes are only listed under /admin/codes: %v", err)
		} else {
			sms = sender
		}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	twin.NewHandler(store, sms).Routes(r)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.TwinPort),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Backend twin starting on :%s (deliver after %d polls, sns=%t)", cfg.TwinPort, cfg.TwinDeliverAfterPolls, sms != nil)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("Backend twin stopped")
}
