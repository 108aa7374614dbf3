/**
 * @description
 * This is the main entry point for the settlement-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * payment provider clients, message brokers, repositories, the core application service,
 * the reminder scheduler, and the HTTP server. It wires everything together and starts
 * the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/stripeclient, pkg/paypalclient, pkg/mailclient, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/pawhaven/settlement-service/internal/api"
	"github.com/pawhaven/settlement-service/internal/app"
	"github.com/pawhaven/settlement-service/internal/config"
	"github.com/pawhaven/settlement-service/internal/store"
	"github.com/pawhaven/settlement-service/pkg/mailclient"
	"github.com/pawhaven/settlement-service/pkg/paypalclient"
	rmrabbit "github.com/pawhaven/settlement-service/pkg/rabbitmq"
	"github.com/pawhaven/settlement-service/pkg/stripeclient"
)

func main() {
	// Load a local .env if present; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}
	if strings.TrimSpace(cfg.StripeAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"stripe api key must be configured\" env=STRIPE_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting settlement-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish events. This service only
	// publishes; a broker outage degrades to the no-op fallback.
	var eventProducer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		eventProducer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the payment provider and email clients.
	stripeClient := stripeclient.NewClient(cfg.StripeAPIKey)
	paypalClient := paypalclient.NewClient(cfg.PayPalAPIBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret)
	mailClient := mailclient.NewClient(cfg.EmailAPIBaseURL, cfg.EmailAPIKey, cfg.EmailFromAddress)

	// Connect Redis for the purchase rate limit. A missing or unreachable
	// Redis disables the limit rather than blocking startup.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; purchase rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; purchase rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; purchase rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	settlementService := app.NewService(
		repository,
		stripeClient,
		paypalClient,
		mailClient,
		eventProducer,
		time.Duration(cfg.EscrowHoldHours)*time.Hour,
		int64(cfg.TrialDays),
		map[string]string{
			"monthly": cfg.StripeMonthlyPriceID,
			"yearly":  cfg.StripeYearlyPriceID,
		},
		map[string]string{
			"monthly": cfg.PayPalMonthlyPlanID,
			"yearly":  cfg.PayPalYearlyPlanID,
		},
	)

	// Start the trial reminder scheduler.
	scheduler := app.NewScheduler(settlementService)
	if err := scheduler.Start(cfg.TrialReminderSchedule); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"reminder scheduler start failed\" err=%v", err)
	}
	defer scheduler.Stop()

	// Initialize the API handlers and router. A nil limiter lets requests
	// through unthrottled.
	var purchaseLimiter *app.RedisPurchaseRateLimiter
	if redisClient != nil {
		purchaseLimiter = app.NewRedisPurchaseRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}
	settlementHandlers := api.NewSettlementHandlers(settlementService)
	routerCfg := api.RouterConfig{
		JWKSURL:         cfg.JWKSURL,
		AllowedOrigin:   cfg.AllowedOrigin,
		InternalAPIKey:  cfg.InternalAPIKey,
		PurchaseLimiter: purchaseLimiter,
		PurchaseLimit:   cfg.PurchaseRateLimitPerMinute,
		PurchaseWindow:  time.Minute,
	}

	router := chi.NewRouter()
	router.Mount("/settlements", api.SettlementRoutes(settlementHandlers, routerCfg))

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
