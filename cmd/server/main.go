package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bookaway/internal/allocation"
	"bookaway/internal/api"
	"bookaway/internal/cache"
	"bookaway/internal/config"
	"bookaway/internal/database"
	"bookaway/internal/events"
	"bookaway/internal/metrics"
	"bookaway/internal/notify"
	"bookaway/internal/season"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("BOOKAWAY_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg.Logging)

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	bus := events.NewEventBus(&logger)

	reg := metrics.New(nil)
	reg.Subscribe(bus)

	var (
		rdb       *redis.Client
		weekCache season.WeekCache
	)
	if ttl := cfg.CacheTTL(); ttl > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		wc := cache.NewWeekCache(rdb, ttl, &logger)
		wc.Subscribe(bus)
		weekCache = wc
	}

	if cfg.Telegram.BotToken != "" {
		notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.AdminChatIDs, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram notifier error")
		}
		notifier.Subscribe(bus)
	}

	controller := season.NewController(db, weekCache, bus, &logger)
	engine := allocation.NewEngine(db, bus, &logger, allocation.WithMetrics(reg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := api.NewHTTPServer(cfg.Server, controller, engine, reg, &logger)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("bookaway started")
	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("bookaway stopped")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.JSON {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, "health", &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, "metrics", &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, logger)
}

func serve(ctx context.Context, name string, srv *http.Server, logger *zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
