package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/archifusion/api/internal/client"
	"github.com/archifusion/api/internal/config"
	"github.com/archifusion/api/internal/executor"
	"github.com/archifusion/api/internal/logger"
	"github.com/archifusion/api/internal/metrics"
	"github.com/archifusion/api/internal/orchestrator"
	"github.com/archifusion/api/internal/resilience"
	"github.com/archifusion/api/internal/server"
	"github.com/archifusion/api/internal/service"
	"github.com/archifusion/api/internal/store"
	ws "github.com/archifusion/api/internal/websocket"
	"github.com/archifusion/api/internal/worker"
)

const (
	httpShutdownTimeout   = 10 * time.Second
	workerShutdownTimeout = 15 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(cfg.Server.LogLevel, cfg.Server.Env)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Redis is optional; without it rate limits are kept in process
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis not available, rate limits fall back to local", zap.Error(err))
		}
		pingCancel()
	}

	breaker := resilience.NewBreaker(resilience.Config{
		Enabled:      cfg.Breaker.Enabled,
		MinRequests:  uint32(cfg.Breaker.MinRequests),
		FailureRatio: cfg.Breaker.FailureRatio,
		OpenTimeout:  cfg.Breaker.OpenTimeout,
	}, m, log)
	caps := client.NewCapabilities(cfg, breaker, log)

	speech, text, visual, job, stage := cfg.Timeouts.Durations()
	exec, err := executor.New(executor.Timeouts{
		Speech: speech,
		Text:   text,
		Visual: visual,
		Job:    job,
		Stage:  stage,
	}, m, log)
	if err != nil {
		log.Fatal("invalid timeouts", zap.Error(err))
	}

	jobs := store.New(cfg.Jobs.TTL, log)
	go jobs.Run(ctx, cfg.Jobs.PurgeInterval)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	generator := orchestrator.NewGenerator(caps, exec, m, log)
	jobWorker := worker.NewJobWorker(generator, jobs, m, log)
	jobService := service.NewJobService(jobs, jobWorker, service.NewValidator(), cfg.Limits, m, log)

	app := server.NewApp(server.Deps{
		Config:       cfg,
		Service:      jobService,
		Hub:          hub,
		Capabilities: caps,
		Redis:        redisClient,
		Metrics:      m,
		Logger:       log,
		AccessLog:    true,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(httpShutdownTimeout); err != nil {
			log.Error("server shutdown error", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info("server starting",
		zap.String("addr", addr),
		zap.String("env", cfg.Server.Env),
		zap.String("inference", client.Mode(caps.InferenceLive)),
		zap.String("vision", client.Mode(caps.VisionLive)),
		zap.String("speech", client.Mode(caps.SpeechLive)))
	if err := app.Listen(addr); err != nil {
		log.Error("server error", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
	defer workerCancel()
	if err := jobWorker.Shutdown(workerCtx); err != nil {
		log.Warn("jobs still running at shutdown were cut short", zap.Error(err))
	}
	log.Info("server stopped")
}
