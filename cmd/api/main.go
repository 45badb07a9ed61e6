package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"campaign-automation/internal/api"
	"campaign-automation/internal/automation"
	"campaign-automation/internal/config"
	"campaign-automation/internal/logger"
	"campaign-automation/internal/metrics"
	"campaign-automation/internal/notify"
	"campaign-automation/internal/ratelimit"
	"campaign-automation/internal/report"
	"campaign-automation/internal/store"
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
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	source := metrics.NewCache(metrics.NewStoreSource(st), redisClient, cfg.MetricCacheTTL)
	slack := notify.NewSlackSender(cfg.SlackWebhookURL, cfg.ActionTimeout)
	email := notify.NewEmailSender(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom, cfg.ActionTimeout)
	reports, err := report.NewGenerator(ctx, cfg, st)
	if err != nil {
		log.WithError(err).Fatal("init report generator")
	}

	executor := automation.NewExecutor(log, st, slack, email, reports, st, cfg.ActionTimeout)
	engine := automation.NewEngine(log, st, automation.NewEvaluator(source), executor, cfg.EngineInterval, cfg.CountPartialSuccess)
	defer engine.Stop()

	server := api.New(cfg, st, engine, limiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.WithField("port", cfg.HTTPPort).Info("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
