package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/service"
)

var serveWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the publish scheduler",
	Long: `Run the HTTP API together with the first-publish and retry passes.
In queue dispatch mode the attempt worker runs in the same process unless
--worker=false is given.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWorker, "worker", true, "run the attempt worker in this process (queue dispatch mode)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateForServing(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	g, ctx := errgroup.WithContext(ctx)

	c := cron.New()
	if err := a.job.Register(ctx, c, cfg.Scheduler.FirstPublishInterval, cfg.Scheduler.RetryInterval); err != nil {
		return err
	}
	c.Start()
	slog.Info("scheduler started",
		"first_publish_interval", cfg.Scheduler.FirstPublishInterval,
		"retry_interval", cfg.Scheduler.RetryInterval,
		"dispatch", cfg.Scheduler.DispatchMode,
	)
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("scheduler stopping...")
		c.Stop()
		return nil
	})

	if cfg.Scheduler.DispatchMode == config.DispatchQueue && serveWorker {
		runWorker(ctx, g, a)
	}

	server := newHTTPServer(a)
	g.Go(func() error {
		slog.Info("HTTP server starting...", "port", cfg.Port)
		return server.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server...")
		return server.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("server shutdown complete")
	return nil
}

func newHTTPServer(a *app) *fiber.App {
	server := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		BodyLimit:    20 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			slog.ErrorContext(c.UserContext(), "unhandled error", "path", c.Path(), "err", err)
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	server.Use(middleware.Trace())
	server.Use(fiberlogger.New())
	server.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	if a.cfg.UploadBackend == config.UploadLocal {
		server.Static("/uploads", a.cfg.UploadDir)
	}

	captions, err := service.NewCaptionSources(a.cfg.Captions)
	if err != nil {
		slog.Warn("caption providers unavailable, using random captions", "err", err)
		captions = nil
	}
	captionService := service.NewCaptionService(captions, a.prompts, a.cfg.Captions.Prompt, a.cfg.Captions.Timeout)
	postService := service.NewPostService(a.cfg.Posts, a.posts, a.history, a.uploads, captionService)
	promptService := service.NewPromptService(a.prompts)
	authService := service.NewAuthService(*a.cfg, a.users)

	health := handlers.NewHealthHandler(a.health)
	server.Get("/health", health.Health)

	auth := handlers.NewAuthHandler(*a.cfg, authService)
	server.Post("/auth/register", auth.Register)
	server.Post("/auth/login", auth.Login)
	server.Post("/auth/logout", auth.Logout)

	authMiddleware := middleware.NewAuthMiddleware(*a.cfg)
	api := server.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(authService)
	api.Get("/user/info", user.GetUserInfo)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/caption", post.GenerateCaption)
	api.Get("/posts/:id", post.GetPost)
	api.Put("/posts/:id", post.UpdatePost)
	api.Delete("/posts/:id", post.RemovePost)
	api.Get("/posts/:id/history", post.History)

	prompt := handlers.NewPromptHandler(promptService)
	api.Post("/prompts", prompt.Create)
	api.Get("/prompts", prompt.List)
	api.Get("/prompts/:id", prompt.Get)
	api.Put("/prompts/:id", prompt.Update)
	api.Delete("/prompts/:id", prompt.Remove)

	return server
}

// runWorker starts the asynq attempt worker and stops it when ctx ends.
func runWorker(ctx context.Context, g *errgroup.Group, a *app) {
	srv := asynq.NewServer(a.redisOpt, asynq.Config{
		Concurrency:     a.cfg.Scheduler.Concurrency,
		ShutdownTimeout: a.cfg.Scheduler.LockTTL,
	})
	mux := queue.NewWorker(a.publish).ServeMux()

	g.Go(func() error {
		slog.Info("attempt worker starting...", "concurrency", a.cfg.Scheduler.Concurrency)
		if err := srv.Start(mux); err != nil {
			return fmt.Errorf("start asynq server: %w", err)
		}
		<-ctx.Done()
		slog.Info("attempt worker stopping...")
		srv.Shutdown()
		return nil
	})
}
