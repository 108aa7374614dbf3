/**
 * @description
 * This file sets up the HTTP router for the settlement-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies the middleware stack: CORS, authentication, the purchase rate
 * limit, and the internal ops guard.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser frontend.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pawhaven/settlement-service/internal/app"
)

// RouterConfig carries the router's middleware settings.
type RouterConfig struct {
	JWKSURL         string
	AllowedOrigin   string
	InternalAPIKey  string
	PurchaseLimiter *app.RedisPurchaseRateLimiter
	PurchaseLimit   int
	PurchaseWindow  time.Duration
}

// SettlementRoutes creates and returns a new router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Internal ops endpoints, guarded by the shared secret.
	r.Group(func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(cfg.InternalAPIKey))
		r.Post("/internal/trial-reminders/check", h.TrialReminderCheckHandler)
		r.Post("/internal/trial-reminders/send", h.TrialReminderSendHandler)
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWKSURL))

		// Purchase endpoints get the per-user rate limit on top.
		r.Group(func(r chi.Router) {
			r.Use(PurchaseRateLimitMiddleware(cfg.PurchaseLimiter, cfg.PurchaseLimit, cfg.PurchaseWindow))
			r.Post("/purchases/authorize", h.AuthorizePurchaseHandler)
			r.Post("/purchases/complete", h.CompletePurchaseHandler)
			r.Post("/purchases/paypal/authorize", h.AuthorizePayPalPurchaseHandler)
			r.Post("/purchases/paypal/complete", h.CompletePayPalPurchaseHandler)
		})

		// Payout ledger endpoints
		r.Get("/payouts/summary", h.PayoutSummaryHandler)
		r.Post("/payouts/request", h.RequestPayoutHandler)

		// Subscription endpoints
		r.Post("/subscriptions", h.CreateSubscriptionHandler)
		r.Post("/subscriptions/paypal", h.CreatePayPalSubscriptionHandler)
		r.Post("/subscriptions/paypal/complete", h.CompletePayPalSubscriptionHandler)
	})

	return r
}
