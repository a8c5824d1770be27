package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/growmark/leadcapture/internal/http/handlers"
	appmw "github.com/growmark/leadcapture/internal/http/middleware"
	"github.com/growmark/leadcapture/internal/notify"
	"github.com/growmark/leadcapture/internal/repo/postgres"
	"github.com/growmark/leadcapture/internal/service"
	"github.com/growmark/leadcapture/internal/webhook"
	"github.com/growmark/leadcapture/pkg/config"
	"github.com/growmark/leadcapture/pkg/database"
	"github.com/growmark/leadcapture/pkg/events"
	"github.com/growmark/leadcapture/pkg/logger"
	mw "github.com/growmark/leadcapture/pkg/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to redis (rate limiting only; safe to lose on restart)
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid redis URL", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Initialize repositories
	verificationRepo := postgres.NewVerificationRepo(pool)
	registryRepo := postgres.NewRegistryRepo(pool)
	sessionRepo := postgres.NewSessionRepo(pool)
	leadRepo := postgres.NewLeadRepo(pool)
	watermarkRepo := postgres.NewWatermarkRepo(pool)

	// Outbound collaborators
	webhookClient := webhook.NewClient(cfg.Validation.DispatchTimeout)
	sender := buildSender(cfg)

	// Initialize services
	callbackURL := cfg.Server.PublicURL + "/validation/callback"
	verificationService := service.NewVerificationService(verificationRepo, webhookClient, eventBus, cfg.Validation, callbackURL)
	scanService := service.NewScanService(registryRepo, sessionRepo, sender, eventBus, cfg.Server.PublicURL)
	conversionService := service.NewConversionService(registryRepo, sessionRepo, leadRepo, eventBus)
	syncService := service.NewSyncService(leadRepo, watermarkRepo, webhook.NewClient(cfg.Sync.PushTimeout), eventBus, cfg.Sync)
	leadService := service.NewLeadService(leadRepo, verificationService, conversionService, syncService, eventBus, cfg.Sync)

	// Initialize handlers
	h := handlers.New(verificationService, scanService, leadService, syncService)

	// Rate limiter for the public entry points
	publicLimiter := appmw.NewRateLimiter(redisClient, appmw.RateLimitConfig{
		Requests: 30,
		Window:   time.Minute,
		KeyFunc:  appmw.PublicEndpointKeyFunc,
	})

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("leadcapture"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Routes
	r.Route("/", func(r chi.Router) {
		// Public scan and capture surface
		r.With(publicLimiter.Middleware()).Get("/r/{shortCode}", h.Redirect)
		r.With(publicLimiter.Middleware()).Post("/sessions", h.OpenSession)
		r.With(publicLimiter.Middleware()).Post("/leads", h.CreateLead)
		r.Get("/sessions/{id}", h.GetSession)
		r.Get("/leads/{id}", h.GetLead)

		// Validation pipeline
		r.Route("/validation", func(r chi.Router) {
			r.With(publicLimiter.Middleware()).Post("/dispatch", h.DispatchValidation)
			r.Post("/callback", h.ValidationCallback)
			r.Get("/{id}", h.GetValidation)
		})

		// Registry management
		r.Route("/registry", func(r chi.Router) {
			r.Post("/", h.CreateRegistryEntry)
			r.Get("/{trackingID}", h.GetRegistryEntry)
			r.Post("/{trackingID}/invite", h.SendInvite)
		})
		r.Get("/events/{eventID}/registry", h.ListRegistryEntries)

		// Outbound sync
		r.Route("/sync", func(r chi.Router) {
			r.Post("/run", h.RunSync)
			r.Get("/status", h.SyncStatus)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting leadcapture service", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		syncService.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("Shutting down leadcapture service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Leadcapture service error", "error", err)
		os.Exit(1)
	}
}

func buildSender(cfg *config.Config) notify.Sender {
	if cfg.Mail.DevMode {
		return notify.NewDevSender()
	}
	if cfg.Mail.MailerSendKey != "" {
		return notify.NewMailerSendSender(cfg.Mail.MailerSendKey, cfg.Mail.FromName, cfg.Mail.SMTPFrom)
	}
	return notify.NewSMTPSender(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.SMTPFrom, cfg.Mail.SMTPUser, cfg.Mail.SMTPPass, cfg.Mail.SMTPUseTLS)
}
