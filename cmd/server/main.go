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
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"

	config "github.com/maheshrc27/instapress/configs"
	"github.com/maheshrc27/instapress/internal/api/handlers"
	"github.com/maheshrc27/instapress/internal/api/middleware"
	"github.com/maheshrc27/instapress/internal/instagram"
	job "github.com/maheshrc27/instapress/internal/jobs"
	"github.com/maheshrc27/instapress/internal/progress"
	"github.com/maheshrc27/instapress/internal/queue"
	"github.com/maheshrc27/instapress/internal/repository"
	"github.com/maheshrc27/instapress/internal/service"
	"github.com/maheshrc27/instapress/pkg/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if cfg.APIKey == "" {
		key, err := utils.GenerateRandomKey(32)
		if err != nil {
			log.Fatalf("Failed to generate API key: %v", err)
		}
		cfg.APIKey = key
		log.Printf("API_KEY not set, generated one for this run: %s", key)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

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
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Api-Key",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	credentialsRepo := repository.NewCredentialsRepository(db)
	scheduledPostRepo := repository.NewScheduledPostRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)

	authService := service.NewAuthService(*cfg, credentialsRepo)
	r2Service := service.NewR2Service(*cfg)
	mediaService := service.NewMediaService(mediaAssetRepo, r2Service)

	igClient := instagram.NewClient(cfg.GraphBaseURL, cfg.RequestTimeout, authService)
	progressStore := progress.NewRedisStore(rdb)
	publishService := service.NewPublishService(*cfg, igClient, progressStore)
	scheduleService := service.NewScheduleService(scheduledPostRepo, mediaService, publishService)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/auth/instagram/callback", auth.Callback)
	app.Post("/login", auth.Login)
	app.Post("/logout", auth.Logout)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Get("/auth/status", auth.Status)
	api.Post("/auth/credentials", auth.SaveCredentials)
	api.Post("/auth/disconnect", auth.Disconnect)

	publish := handlers.NewPublishHandler(publishService)
	api.Post("/publish", publish.StartPublish)
	api.Get("/publish/status", publish.QueryStatus)

	schedule := handlers.NewScheduleHandler(scheduleService, client)
	api.Post("/schedule", schedule.Schedule)
	api.Get("/schedule", schedule.ListScheduled)
	api.Delete("/schedule", schedule.Cancel)

	media := handlers.NewMediaHandler(mediaService, publishService)
	api.Get("/media", media.List)
	api.Post("/media/upload", media.Upload)
	api.Post("/media/publish", media.PublishFromMedia)

	// cron jobs
	dispatchJob := job.NewDispatchJob(scheduleService, authService)

	// queue
	queueW := queue.NewQueue(scheduleService)

	c := cron.New()
	c.AddFunc("@every 00h01m00s", dispatchJob.DispatchDue)
	c.AddFunc("@every 01h00m00s", dispatchJob.RefreshToken)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeDispatchPost, queueW.HandleDispatchPostTask)

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
