package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"turnero/internal/api"
	"turnero/internal/audit"
	"turnero/internal/booking"
	"turnero/internal/config"
	"turnero/internal/database"
	"turnero/internal/dispatch"
	"turnero/internal/events"
	"turnero/internal/metrics"
	"turnero/internal/model"
	"turnero/internal/reminders"
	"turnero/internal/service"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("TURNERO_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, sweep lock disabled")
			rdb = nil
		}
	}

	bus := events.NewBus()
	if cfg.Notifications.GatewayURL != "" {
		gateway := dispatch.NewClient(
			cfg.Notifications.GatewayURL,
			cfg.Notifications.APIKey,
			cfg.Reminders.Channel,
			cfg.Notifications.RatePerSecond,
			logger,
		)
		for _, eventType := range []string{
			events.BookingCreated, events.BookingConfirmed, events.BookingCancelled,
			events.BookingRescheduled, events.BookingNoShow,
		} {
			bus.Subscribe(eventType, func(ev events.Event) error {
				go gateway.Notify(ev.Type, ev.Payload)
				return nil
			})
		}
	}

	windows := booking.Windows{
		Cancellation: cfg.CancellationWindow(),
		Reschedule:   cfg.RescheduleWindow(),
	}
	scheduler := service.NewScheduler(db, bus, windows, logger)

	var sweeper *reminders.Sweeper
	if cfg.Reminders.Enabled {
		var notifier reminders.Notifier
		if cfg.Notifications.GatewayURL != "" {
			notifier = dispatch.NewClient(
				cfg.Notifications.GatewayURL,
				cfg.Notifications.APIKey,
				cfg.Reminders.Channel,
				cfg.Notifications.RatePerSecond,
				logger,
			)
		} else {
			logger.Warn().Msg("reminders enabled without a notification gateway, using log notifier")
			notifier = logNotifier{logger: logger}
		}

		var lock *reminders.SweepLock
		if rdb != nil {
			lock = reminders.NewSweepLock(rdb, "", cfg.SweepInterval())
		}
		sweeper = reminders.NewSweeper(reminders.Config{
			SweepInterval: cfg.SweepInterval(),
			OffsetsHours:  cfg.ReminderOffsets(),
			MatchWindow:   cfg.ReminderMatchWindow(),
			Channel:       cfg.Reminders.Channel,
		}, db, notifier, lock, reminders.NewMetrics("turnero", nil), logger)
		sweeper.Start()
		defer sweeper.Stop()
	}

	if cfg.Audit.Enabled {
		auditSvc := audit.NewService(audit.Config{
			ExportPath: cfg.Audit.ExportPath,
			Retention:  cfg.AuditRetention(),
		}, db, logger)
		auditSvc.Start()
		defer auditSvc.Stop()
	}

	if cfg.Backup.Enabled {
		go startBackupLoop(ctx, db, cfg, &logger)
	}

	go startHealthServer(ctx, cfg.HealthPort(), db, rdb, &logger)

	metrics.Register()
	go startMetricsServer(ctx, cfg.MetricsPort(), &logger)

	server := api.NewHTTPServer(scheduler, cfg.ServerPort(), cfg.Server.APIKey, logger)
	if sweeper != nil {
		server.SetSweepTrigger(sweeper.RunSweep)
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Msg("Scheduler started")
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

// logNotifier stands in for the gateway in development setups.
type logNotifier struct {
	logger zerolog.Logger
}

func (n logNotifier) SendReminder(_ context.Context, b model.Booking, offsetHours int) error {
	n.logger.Info().
		Str("booking_id", b.ID).
		Int("offset_hours", offsetHours).
		Time("start", b.StartTime).
		Msg("Reminder (log only)")
	return nil
}

func startBackupLoop(ctx context.Context, db *database.DB, cfg *config.Config, logger *zerolog.Logger) {
	ticker := time.NewTicker(cfg.BackupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := db.Backup(ctx, cfg.BackupPath()); err != nil {
				logger.Error().Err(err).Msg("backup failed")
				continue
			}
			if deleted, err := db.CleanupBackups(cfg.BackupPath(), cfg.BackupRetention()); err != nil {
				logger.Warn().Err(err).Msg("backup cleanup failed")
			} else if deleted > 0 {
				logger.Info().Int("deleted", deleted).Msg("Old backups removed")
			}
		}
	}
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

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
