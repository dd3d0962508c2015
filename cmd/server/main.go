package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postpilot/configs"
	"github.com/maheshrc27/postpilot/internal/api/handlers"
	"github.com/maheshrc27/postpilot/internal/api/middleware"
	job "github.com/maheshrc27/postpilot/internal/jobs"
	"github.com/maheshrc27/postpilot/internal/platform"
	"github.com/maheshrc27/postpilot/internal/publisher"
	"github.com/maheshrc27/postpilot/internal/queue"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/internal/service"
	"github.com/maheshrc27/postpilot/internal/webhook"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	asynqClient := asynq.NewClient(redisConn)
	defer asynqClient.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	selectedAccountRepo := repository.NewSelectedAccountRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	attemptRepo := repository.NewDeliveryAttemptRepository(db)
	subscriptionRepo := repository.NewWebhookSubscriptionRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)

	registry := platform.NewRegistry()

	enqueuer := queue.NewClient(asynqClient)

	notifier := webhook.NewNotifier(subscriptionRepo, enqueuer,
		cfg.Webhooks.MaxAttempts, cfg.Webhooks.BackoffBase, cfg.Webhooks.DisableThreshold, cfg.Webhooks.RatePerSec)

	tokenManager := publisher.NewTokenManager(credentialRepo, socialAccountRepo, registry,
		[]byte(cfg.SecretKey), cfg.Publishing.ExpiringSoon, cfg.Publishing.RefreshLeadTime)
	retryManager := publisher.NewRetryManager(attemptRepo, enqueuer,
		cfg.Publishing.MaxAttempts, cfg.Publishing.RetryBaseDelay, cfg.Publishing.RetryMaxDelay, cfg.Publishing.RetryJitter)
	conflictDetector := publisher.NewConflictDetector(postRepo, cfg.Publishing.ConflictWindow)
	dispatcher := publisher.NewDispatcher(postRepo, selectedAccountRepo, socialAccountRepo,
		postMediaRepo, mediaAssetRepo, attemptRepo, registry, tokenManager, retryManager, notifier,
		cfg.Publishing.WorkerSlots, cfg.Publishing.PublishTimeout)
	scheduler := publisher.NewScheduler(postRepo, selectedAccountRepo, attemptRepo, conflictDetector, dispatcher, enqueuer)

	userService := service.NewUserService(userRepo)
	r2Service := service.NewR2Service(*cfg)
	postService := service.NewPostService(db, postRepo, selectedAccountRepo, mediaAssetRepo,
		socialAccountRepo, postMediaRepo, attemptRepo, conflictDetector, r2Service)
	accountService := service.NewAccountService(socialAccountRepo, tokenManager)
	webhookService := service.NewWebhookService(subscriptionRepo)
	keysService := service.NewKeysService(apiKeyRepo)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, keysService)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)
	api.Post("/user/remove", user.RemoveUser)

	apiKeys := handlers.NewApiKeyHandler(keysService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	post := handlers.NewPostHandler(postService, scheduler)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/cancel", post.CancelPost)
	api.Post("/posts/retry_failed", post.RetryFailed)
	api.Post("/posts/remove", post.RemovePost)

	account := handlers.NewAccountHandler(accountService)
	api.Get("/accounts", account.ListAccounts)
	api.Get("/accounts/health", account.AccountHealth)
	api.Post("/accounts/remove", account.RemoveAccount)

	webhooks := handlers.NewWebhookHandler(webhookService)
	api.Post("/webhooks/new", webhooks.CreateWebhook)
	api.Get("/webhooks/list", webhooks.ListWebhooks)
	api.Post("/webhooks/remove", webhooks.RemoveWebhook)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(tokenManager)
	catchupJob := job.NewCatchupJob(scheduler)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.AddFunc("@every 00h01m00s", catchupJob.FireDuePosts)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.Publishing.WorkerSlots,
		})

		mux := asynq.NewServeMux()
		worker := queue.NewWorker(scheduler, dispatcher, notifier)
		worker.Register(mux)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
