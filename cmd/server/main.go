/**
 * @description
 * This is the main entry point for the membership-service. It is responsible
 * for initializing all components of the service: configuration, database
 * connection pool, the payment gateway client, the document store, message
 * broker producer, redis idempotency guard, repositories, the core application
 * service, the cron scheduler, and the HTTP server. It wires everything
 * together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/razorpay, pkg/docstore, pkg/rabbitmq: Gateway, storage, and broker clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Soundar1309/ispb-membership-service/internal/api"
	"github.com/Soundar1309/ispb-membership-service/internal/app"
	"github.com/Soundar1309/ispb-membership-service/internal/config"
	"github.com/Soundar1309/ispb-membership-service/internal/domain"
	"github.com/Soundar1309/ispb-membership-service/internal/store"
	"github.com/Soundar1309/ispb-membership-service/pkg/docstore"
	"github.com/Soundar1309/ispb-membership-service/pkg/rabbitmq"
	"github.com/Soundar1309/ispb-membership-service/pkg/razorpay"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting membership-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
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

	// Initialize the RabbitMQ producer to publish lifecycle events.
	// This service only needs to publish, so we use a producer.
	var eventPublisher rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventPublisher = &rabbitmq.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		eventPublisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the Razorpay client.
	gatewayClient := razorpay.NewClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)

	// Initialize the S3 document store. Missing storage config should not
	// prevent the service from booting; invoices and uploads will degrade.
	var documentStore app.DocumentStore
	if strings.TrimSpace(cfg.S3Bucket) == "" || strings.TrimSpace(cfg.S3Region) == "" {
		log.Printf("level=warn component=bootstrap msg=\"document store not configured; invoice and document storage disabled\" s3_bucket_set=%t s3_region_set=%t",
			strings.TrimSpace(cfg.S3Bucket) != "",
			strings.TrimSpace(cfg.S3Region) != "",
		)
	} else {
		s3Store, storeErr := docstore.New(context.Background(), docstore.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if storeErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"document store init failed; invoice and document storage disabled\" err=%v", storeErr)
		} else {
			documentStore = s3Store
			log.Println("level=info component=bootstrap msg=\"document store connected\"")
		}
	}

	// Initialize the optional redis idempotency guard for gateway callbacks.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; callback replay guard disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; callback replay guard disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; callback replay guard disabled\" err=%v", pingErr)
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
	fees := app.Fees{
		domain.MembershipAnnual:        cfg.AnnualFeePaise,
		domain.MembershipLifetime:      cfg.LifetimeFeePaise,
		domain.MembershipStudent:       cfg.StudentFeePaise,
		domain.MembershipInstitutional: cfg.InstitutionalFeePaise,
	}
	membershipService := app.NewService(
		repository,
		gatewayClient,
		documentStore,
		eventPublisher,
		fees,
		cfg.Currency,
		cfg.MemberCodePrefix,
		cfg.MemberCodeWidth,
	)
	if redisClient != nil {
		membershipService.SetIdempotencyGuard(
			app.NewRedisIdempotencyGuard(redisClient, "ispb:idempotency", 24*time.Hour),
		)
	}

	// Initialize the API handlers.
	membershipHandlers := api.NewMembershipHandlers(membershipService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.MembershipRoutes(membershipHandlers, cfg.JWTSecret, cfg.AllowedOrigins()))

	// Start the cron scheduler for the nightly expiry sweep.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	jobs := app.NewJobs(membershipService, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.ExpirySweepSchedule)
	scheduler.Start()

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

	// Let an in-flight sweep finish before tearing the process down.
	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
