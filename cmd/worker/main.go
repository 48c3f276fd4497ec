package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/config"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/events"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/notify"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/obs"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/payment"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "tpq-billing-worker"

	pool, err := pgxpool.NewWithConfig(initCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(initCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	st := store.NewPostgres(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	}

	taskClient := asynq.NewClient(redisOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	bus := &events.Bus{
		Store: st,
		Notifiers: []events.Notifier{
			notify.Enqueuer{Client: taskClient, Log: logger},
		},
	}

	paymentSvc := &payment.Service{Store: st, Rule: cfg.FineRule, Events: bus, Log: logger}

	worker := &notify.Worker{
		Store:      st,
		Mail:       common.NopEmailSender{},
		Directory:  loadDirectory(logger),
		Rule:       cfg.FineRule,
		Expirer:    paymentSvc,
		Events:     bus,
		AdminEmail: cfg.AdminEmail,
		BatchSize:  envInt("WORKER_BATCH_SIZE", 200),
		Log:        logger,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 8),
		Queues:      map[string]int{"default": 1},
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	schedule := func(spec, taskType string) {
		if _, err := scheduler.Register(spec, asynq.NewTask(taskType, nil)); err != nil {
			logger.Fatal().Err(err).Str("task", taskType).Msg("register schedule")
		}
	}
	schedule(envOrDefault("EXPIRE_SWEEP_CRON", "* * * * *"), notify.TypeExpireSweep)
	schedule(envOrDefault("OVERDUE_SCAN_CRON", "0 1 * * *"), notify.TypeOverdueScan)
	schedule(envOrDefault("CART_GC_CRON", "30 * * * *"), notify.TypeCartGC)

	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	if err := srv.Start(worker.Mux()); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	logger.Info().Msg("worker started")
	<-ctx.Done()

	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
	scheduler.Shutdown()
}

// loadDirectory reads guardian contact addresses from GUARDIAN_CONTACTS, a
// comma separated list of <guardian-uuid>=<email> pairs. Notifications for
// guardians without an entry are skipped.
func loadDirectory(logger zerolog.Logger) notify.StaticDirectory {
	dir := notify.StaticDirectory{}
	raw := strings.TrimSpace(os.Getenv("GUARDIAN_CONTACTS"))
	if raw == "" {
		return dir
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := uuid.Parse(strings.TrimSpace(parts[0]))
		if err != nil {
			logger.Warn().Str("entry", pair).Msg("skip malformed guardian contact")
			continue
		}
		dir[id] = strings.TrimSpace(parts[1])
	}
	return dir
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
