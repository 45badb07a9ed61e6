package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"campaign-automation/internal/automation"
	"campaign-automation/internal/config"
	"campaign-automation/internal/logger"
	"campaign-automation/internal/metrics"
	"campaign-automation/internal/notify"
	"campaign-automation/internal/platform"
	"campaign-automation/internal/report"
	"campaign-automation/internal/schedule"
	"campaign-automation/internal/store"
	"campaign-automation/internal/telemetry"
	"campaign-automation/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.WithError(err).Fatal("migrations")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	source := metrics.NewCache(metrics.NewStoreSource(st), redisClient, cfg.MetricCacheTTL)
	slack := notify.NewSlackSender(cfg.SlackWebhookURL, cfg.ActionTimeout)
	email := notify.NewEmailSender(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom, cfg.ActionTimeout)
	platformClient := platform.NewClient(cfg.PlatformDataURL, cfg.ActionTimeout)
	reports, err := report.NewGenerator(ctx, cfg, st)
	if err != nil {
		log.WithError(err).Fatal("init report generator")
	}

	executor := automation.NewExecutor(log, st, slack, email, reports, st, cfg.ActionTimeout)
	engine := automation.NewEngine(log, st, automation.NewEvaluator(source), executor, cfg.EngineInterval, cfg.CountPartialSuccess)
	engine.Start(ctx)
	defer engine.Stop()

	processor := worker.NewProcessor(log, st, cfg.WorkerPollInterval, cfg.RetryPermanentErrors)
	handlers := &worker.Handlers{
		Log:           log,
		Email:         email,
		Slack:         slack,
		Analytics:     st,
		Jobs:          st,
		Platform:      platformClient,
		Reports:       reports,
		Engine:        engine,
		RetentionDays: cfg.RetentionDays,
	}
	handlers.Register(processor)

	scheduler, err := schedule.New(log, cfg, st)
	if err != nil {
		log.WithError(err).Fatal("init scheduler")
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	log.WithField("poll_interval", cfg.WorkerPollInterval.String()).Info("worker started")
	if err := processor.Run(ctx); err != nil {
		log.WithError(err).Info("worker stopped")
	}
}
