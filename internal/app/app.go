package app

import (
	"context"
	"log/slog"
	"time"

	httpapp "github.com/renshs/auth/internal/app/http"
	redisapp "github.com/renshs/auth/internal/app/locker/redis"
	prometheusapp "github.com/renshs/auth/internal/app/prometheus"
	storageapp "github.com/renshs/auth/internal/app/storage"
	"github.com/renshs/auth/internal/config"
	authhttp "github.com/renshs/auth/internal/http/auth"
	"github.com/renshs/auth/internal/kafka"
	authservice "github.com/renshs/auth/internal/services/auth"
	eventsender "github.com/renshs/auth/internal/services/event_sender"
	"github.com/renshs/auth/internal/storage"
)

const (
	eventsLimit       = 100
	producingInterval = time.Second
)

type App struct {
	httpServer  *httpapp.App
	metrics     *prometheusapp.App
	storage     *storageapp.App
	redisLocker *redisapp.App
	eventSender *eventsender.Sender
	producer    *kafka.Producer
}

func New(log *slog.Logger, cfg *config.Config) *App {
	metrics := prometheusapp.New(log, cfg.Metrics.Port)
	storageApp := storageapp.MustCreateApp(cfg.Storage, log)

	var (
		attempts    storage.AttemptStore = storageApp.Storage
		redisLocker *redisapp.App
	)
	if cfg.Locker.Backend == config.LockerRedis {
		redisLocker = redisapp.New(log, cfg.Locker.RedisAddr)
		attempts = redisLocker.Storage
	}

	authService := authservice.New(
		log,
		storageApp.Storage,
		storageApp.Storage,
		attempts,
		cfg.Auth.MaxFailed,
		cfg.Auth.LockDuration,
		metrics.FailedLoginsCounter,
		metrics.LockoutsCounter,
	)

	var (
		producer *kafka.Producer
		sender   *eventsender.Sender
	)
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sender = eventsender.NewSender(log, producer, storageApp.Storage)
	}

	authServer := authhttp.InitializeServerAPI(log, authService)

	httpOpts := httpapp.AppOpts{
		Log:             log,
		Env:             cfg.Env,
		Port:            cfg.HTTP.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		StaticDir:       cfg.StaticDir,
	}
	httpApp := httpapp.New(httpOpts, authServer, metrics.MetricsMiddleware(), metrics.RecoveryHandler())

	return &App{
		httpServer:  httpApp,
		metrics:     metrics,
		storage:     storageApp,
		redisLocker: redisLocker,
		eventSender: sender,
		producer:    producer,
	}
}

func (a *App) MustRun() {
	go a.httpServer.MustRun()
	go a.metrics.MustRun()
	if a.eventSender != nil {
		a.eventSender.StartProducing(context.Background(), eventsLimit, producingInterval)
	}
}

func (a *App) Stop() error {
	if err := a.httpServer.Stop(); err != nil {
		return err
	}

	if a.eventSender != nil {
		a.eventSender.StopSending()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			return err
		}
	}

	a.storage.Stop()

	if a.redisLocker != nil {
		return a.redisLocker.Stop()
	}

	return nil
}
