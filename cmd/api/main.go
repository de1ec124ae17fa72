package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/geopix/geopix-back/internal/auth"
	"github.com/geopix/geopix-back/internal/broadcast"
	"github.com/geopix/geopix-back/internal/config"
	"github.com/geopix/geopix-back/internal/domain"
	httpserver "github.com/geopix/geopix-back/internal/http"
	"github.com/geopix/geopix-back/internal/http/handlers"
	"github.com/geopix/geopix-back/internal/media"
	"github.com/geopix/geopix-back/internal/notify"
	"github.com/geopix/geopix-back/internal/queue"
	"github.com/geopix/geopix-back/internal/repository"
	"github.com/geopix/geopix-back/internal/service"
	"github.com/geopix/geopix-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[geopix] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)

	cfg, err := config.Load(".env", ".env.local")
	if err != nil {
		logger.Fatalf("load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := setupRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	uploadsRepo, usersRepo, repoCloser := setupRepositories(ctx, cfg, logger)
	defer repoCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, redisClient, logger)
	defer queueCloser()

	mediaStore := setupMedia(cfg, logger)
	sink, broadcaster := setupFanout(redisClient, logger)
	dispatcher := notify.NewDispatcher(sink, cfg.AppBaseURL)

	authService := auth.NewService(usersRepo)
	uploadsService := service.NewUploadsService(
		uploadsRepo, producer, mediaStore, logger, cfg.DuplicateWindow,
	)

	api := handlers.NewAPI(uploadsService, authService)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Resolver:       authService,
		Logger:         logger,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		processor := worker.NewProcessor(
			consumer, uploadsRepo, dispatcher, broadcaster, logger, cfg.MessageTimeout,
		)
		go processor.Start(ctx)
		logger.Printf("result worker enabled and started")
	} else {
		logger.Printf("result worker disabled by configuration")
	}

	if cfg.ReconcilerEnabled {
		reconciler := worker.NewReconciler(
			uploadsRepo, producer, logger,
			cfg.ReconcilerInterval, cfg.ReconcilerThreshold, cfg.ReconcilerBatch,
		)
		go reconciler.Start(ctx)
		logger.Printf("reconciler enabled and started")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupRedis(cfg config.Config, logger *log.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		logger.Printf("REDIS_ADDR not configured, redis-backed components disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRepositories(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repository.UploadsRepository, repository.UsersRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repositories")
		users := repository.NewMemoryUsersRepository()
		seedUser(ctx, users, cfg, logger)
		return repository.NewMemoryUploadsRepository(), users, func() {}
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres pool, fallback to memory: %v", err)
		users := repository.NewMemoryUsersRepository()
		seedUser(ctx, users, cfg, logger)
		return repository.NewMemoryUploadsRepository(), users, func() {}
	}
	logger.Printf("postgres repositories initialized")
	return repository.NewPostgresUploadsRepository(pool),
		repository.NewPostgresUsersRepository(pool),
		pool.Close
}

// seedUser provisions a development account so the in-memory setup is usable
// out of the box.
func seedUser(ctx context.Context, users repository.UsersRepository, cfg config.Config, logger *log.Logger) {
	if cfg.SeedUserEmail == "" || cfg.SeedUserPassword == "" {
		return
	}
	hash, err := auth.HashPassword(cfg.SeedUserPassword)
	if err != nil {
		logger.Printf("failed to hash seed password: %v", err)
		return
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        cfg.SeedUserEmail,
		Name:         "Development User",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.CreateUser(ctx, user); err != nil {
		logger.Printf("failed to seed user: %v", err)
		return
	}
	logger.Printf("seeded development user email=%s", user.Email)
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	redisClient *redis.Client,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	switch cfg.QueueDriver {
	case "redis":
		if redisClient == nil {
			logger.Printf("redis queue requested without REDIS_ADDR, using local queue fallback")
			break
		}
		streams, err := queue.NewStreamsQueue(ctx, redisClient, queue.StreamsConfig{
			TaskStream:   cfg.Redis.TaskStream,
			ResultStream: cfg.Redis.ResultStream,
			Group:        cfg.Redis.Group,
			Consumer:     cfg.Redis.Consumer,
		})
		if err != nil {
			logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
			break
		}
		logger.Printf("redis streams queue initialized")
		return streams, streams, func() {}
	case "kafka":
		kafkaQueue, err := queue.NewKafkaQueue(queue.KafkaConfig{
			Brokers:     cfg.Kafka.Brokers,
			TaskTopic:   cfg.Kafka.TaskTopic,
			ResultTopic: cfg.Kafka.ResultTopic,
			Group:       cfg.Kafka.Group,
			ClientID:    cfg.Kafka.ClientID,
		})
		if err != nil {
			logger.Printf("failed to initialize kafka queue, fallback to local: %v", err)
			break
		}
		logger.Printf("kafka queue initialized")
		return kafkaQueue, kafkaQueue, func() {
			_ = kafkaQueue.Close()
		}
	}

	local := queue.NewLocalQueue(512, logger)
	local.StartLoopback(ctx)
	logger.Printf("local queue with loopback worker started")
	return local, local, func() {}
}

func setupMedia(cfg config.Config, logger *log.Logger) media.Store {
	if cfg.Media.Driver == "s3" {
		store, err := media.NewS3Store(media.S3Config{
			Bucket:    cfg.Media.S3Bucket,
			Region:    cfg.Media.S3Region,
			Endpoint:  cfg.Media.S3Endpoint,
			AccessKey: cfg.Media.S3AccessKey,
			SecretKey: cfg.Media.S3SecretKey,
			Prefix:    cfg.Media.S3Prefix,
			BaseURL:   cfg.Media.BaseURL,
		})
		if err == nil {
			logger.Printf("s3 media store initialized bucket=%s", cfg.Media.S3Bucket)
			return store
		}
		logger.Printf("failed to initialize s3 media store, fallback to fs: %v", err)
	}

	store, err := media.NewFSStore(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		logger.Fatalf("initialize media store: %v", err)
	}
	logger.Printf("filesystem media store initialized dir=%s", cfg.Media.Dir)
	return store
}

func setupFanout(redisClient *redis.Client, logger *log.Logger) (notify.Sink, broadcast.Broadcaster) {
	if redisClient != nil {
		return notify.NewRedisSink(redisClient), broadcast.NewRedisBroadcaster(redisClient)
	}

	sink := notify.SinkFunc(func(_ context.Context, notification notify.Notification) error {
		logger.Printf("notification owner_id=%s message=%q", notification.OwnerID, notification.Message)
		return nil
	})
	broadcaster := broadcast.BroadcasterFunc(func(_ context.Context, event broadcast.Event) error {
		logger.Printf("broadcast channel=%s event=%s", event.Channel, event.Name)
		return nil
	})
	return sink, broadcaster
}
