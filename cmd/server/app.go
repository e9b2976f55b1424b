package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	config "github.com/maheshrc27/postflow/configs"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
)

// app holds the connections and services shared by every command.
type app struct {
	cfg *config.Config

	db  *mongo.Database
	pg  *sql.DB
	rdb *redis.Client

	asynqClient *asynq.Client
	redisOpt    asynq.RedisConnOpt

	posts   repository.PostRepository
	prompts repository.PromptRepository
	users   repository.UserRepository
	history repository.PostingHistoryRepository
	uploads service.UploadStore

	health  *job.Health
	publish service.PublishService
	job     *job.PublishJob
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, health: job.NewHealth()}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.db, err = repository.InitMongo(ctx, cfg.MongoURI, cfg.DatabaseName)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := repository.EnsurePostIndexes(ctx, a.db); err != nil {
		return nil, fmt.Errorf("ensure post indexes: %w", err)
	}
	if err := repository.EnsureUserIndexes(ctx, a.db); err != nil {
		return nil, fmt.Errorf("ensure user indexes: %w", err)
	}

	a.posts = repository.NewPostRepository(a.db)
	a.prompts = repository.NewPromptRepository(a.db)
	a.users = repository.NewUserRepository(a.db)

	if cfg.PostgresURI != "" {
		a.pg, err = repository.InitPostgres(ctx, cfg.PostgresURI)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.history = repository.NewPostingHistoryRepository(a.pg)
	} else {
		a.history = repository.NewMongoPostingHistoryRepository(a.db)
	}

	locker := lock.NewLocalLocker()
	if cfg.RedisURI != "" {
		a.rdb, err = lock.NewRedisClient(ctx, cfg.RedisURI)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		locker = lock.NewRedisLocker(a.rdb, cfg.Scheduler.LockTTL)

		a.redisOpt, err = asynq.ParseRedisURI(cfg.RedisURI)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URI: %w", err)
		}
	}

	switch cfg.UploadBackend {
	case config.UploadR2:
		a.uploads, err = service.NewR2UploadStore(ctx, cfg.R2)
	default:
		a.uploads, err = service.NewLocalUploadStore(cfg.UploadDir, cfg.BaseURL)
	}
	if err != nil {
		return nil, fmt.Errorf("init upload store: %w", err)
	}

	publishers, err := a.publishers()
	if err != nil {
		return nil, err
	}
	a.publish = service.NewPublishService(a.posts, locker, publishers,
		service.WithHistory(a.history),
		service.WithUploads(a.uploads),
		service.WithAttemptTimeout(cfg.AttemptTimeout()),
	)

	var dispatcher queue.Dispatcher
	if cfg.Scheduler.DispatchMode == config.DispatchQueue {
		a.asynqClient = asynq.NewClient(a.redisOpt)
		dispatcher = queue.NewAsynqDispatcher(a.asynqClient, cfg.Scheduler.LockTTL)
	} else {
		dispatcher = queue.NewInlineDispatcher(a.publish)
	}

	a.job = job.NewPublishJob(a.posts, dispatcher, a.publish.Platforms(),
		job.WithConcurrency(cfg.Scheduler.Concurrency),
		job.WithJitter(cfg.Scheduler.Jitter),
		job.WithHealth(a.health),
	)
	return a, nil
}

// publishers builds every platform publisher. A platform with missing
// credentials is disabled; any other error is fatal.
func (a *app) publishers() ([]service.Publisher, error) {
	constructors := map[models.Platform]func(config.Config) (service.Publisher, error){
		models.PlatformInstagram: service.NewInstagramService,
		models.PlatformFacebook:  service.NewFacebookService,
	}

	var out []service.Publisher
	for _, platform := range models.Platforms {
		component := "publisher:" + string(platform)
		p, err := constructors[platform](*a.cfg)

		var cfgErr *service.ConfigurationError
		switch {
		case errors.As(err, &cfgErr):
			slog.Warn("publisher disabled", "platform", platform, "err", err)
			a.health.SetHealthy(component, "disabled: "+err.Error())
		case err != nil:
			return nil, fmt.Errorf("init %s publisher: %w", platform, err)
		default:
			a.health.SetHealthy(component, "enabled")
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		slog.Warn("no publisher is configured, due posts will not be published")
	}
	return out, nil
}

func (a *app) Close(ctx context.Context) {
	if a.asynqClient != nil {
		if err := a.asynqClient.Close(); err != nil {
			slog.Error("close asynq client", "err", err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			slog.Error("close redis", "err", err)
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			slog.Error("close postgres", "err", err)
		}
	}
	if a.db != nil {
		if err := a.db.Client().Disconnect(ctx); err != nil {
			slog.Error("disconnect mongo", "err", err)
		}
	}
}
