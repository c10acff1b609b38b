package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cooklab/api/internal/catalog"
	"github.com/cooklab/api/internal/config"
	"github.com/cooklab/api/internal/database"
	apihandlers "github.com/cooklab/api/internal/handlers/api"
	"github.com/cooklab/api/internal/mail"
	"github.com/cooklab/api/internal/membership"
	"github.com/cooklab/api/internal/middleware"
	"github.com/cooklab/api/internal/pricing"
	"github.com/cooklab/api/internal/retry"
	"github.com/cooklab/api/internal/services/fulfillment"
	cookstripe "github.com/cooklab/api/internal/stripe"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.LoadDev()

	// Connect to database
	pool, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	slog.Info("database connected")

	// Run migrations
	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	slog.Info("migrations complete")

	// Initialize Stripe service
	stripeSvc := cookstripe.NewService(cfg.StripeSecretKey, logger)

	// Initialize pricing
	cat := catalog.Default()
	engine := pricing.NewEngine(pricing.DefaultTable(), logger)

	// Initialize provider clients
	membershipClient := membership.NewClient(cfg.Membership, logger)
	mailSvc := mail.NewService(cfg.Mail, logger)

	// Initialize fulfillment
	store := fulfillment.NewPGStore(pool)
	policy := retry.Policy{
		MaxAttempts: cfg.Fulfillment.MaxAttempts,
		BaseDelay:   cfg.Fulfillment.BaseDelay,
	}
	fulfillmentSvc := fulfillment.NewService(store, membershipClient, mailSvc, policy, logger)

	// Initialize API handlers
	checkoutHandler := apihandlers.NewCheckoutHandler(
		cat, engine, stripeSvc, logger,
		cfg.BaseURL+"/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		cfg.BaseURL+"/checkout/cancel",
	)
	webhookHandler := apihandlers.NewWebhookHandler(stripeSvc, fulfillmentSvc, logger, cfg.StripeWebhookKey)
	mailHandler := apihandlers.NewMailHandler(mailSvc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, `{"status":"degraded"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	// Session creation gets its own stricter limiter: every request here
	// hits the payment processor.
	mux.Handle("POST /api/v1/checkout",
		middleware.CheckoutRateLimiter()(http.HandlerFunc(checkoutHandler.CreateCheckout)))
	mux.HandleFunc("POST /api/v1/checkout/quote", checkoutHandler.Quote)
	webhookHandler.RegisterRoutes(mux)
	mailHandler.RegisterRoutes(mux)

	// Apply middleware stack
	var chain http.Handler = mux
	chain = middleware.SecurityHeaders(chain)
	chain = middleware.RateLimiter(20, 40)(chain) // 20 req/s, burst 40 per IP
	chain = middleware.Recover(logger)(chain)
	chain = middleware.RequestLogger(logger)(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      chain,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("API server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		slog.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
