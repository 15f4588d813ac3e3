package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Spok95/campus-maintenance/internal/app"
	"github.com/Spok95/campus-maintenance/internal/auth"
	"github.com/Spok95/campus-maintenance/internal/channel"
	"github.com/Spok95/campus-maintenance/internal/config"
	"github.com/Spok95/campus-maintenance/internal/db"
	"github.com/Spok95/campus-maintenance/internal/jobs"
	"github.com/Spok95/campus-maintenance/internal/logging"
	"github.com/Spok95/campus-maintenance/internal/notify"
	"github.com/Spok95/campus-maintenance/internal/observability"
	"github.com/Spok95/campus-maintenance/internal/requests"
)

var version = "dev"

// Slack on top of DispatchTimeout for lock round trips and the log write.
const dispatchLeaseMargin = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()

	if err := run(cfg, lg); err != nil {
		lg.Base.Error("server stopped with error", zap.Error(err))
		lg.Closer()
		os.Exit(1)
	}
}

func run(cfg *config.Config, lg *logging.Log) error {
	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		lg.Base.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(ctx, database); err != nil {
		return err
	}
	store := db.NewStore(database)

	if cfg.DefaultAdmin.Password == "" {
		lg.Base.Warn("ADMIN_DEFAULT_PASSWORD is empty, admin bootstrap skipped")
	} else {
		created, err := db.EnsureDefaultAdmin(ctx, store,
			cfg.DefaultAdmin.Name, cfg.DefaultAdmin.Email, cfg.DefaultAdmin.Phone,
			auth.HashPassword, cfg.DefaultAdmin.Password)
		if err != nil {
			return fmt.Errorf("default admin: %w", err)
		}
		if created {
			lg.Base.Info("default admin created", zap.String("email", cfg.DefaultAdmin.Email))
		}
	}

	ch, err := buildChannel(cfg)
	if err != nil {
		return err
	}
	dispatcher := notify.New(store, ch, cfg.Recipient(), cfg.DispatchTimeout, lg.Component("dispatcher"))

	runner := jobs.New(ctx, lg.Component("jobs"))
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis ping: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		runner.WithLock(jobs.NewRedisLock(rdb))
	}
	// A cycle can run up to DispatchTimeout; the lock must outlive it.
	runner.EveryWithLease(cfg.DispatchInterval, cfg.DispatchTimeout+dispatchLeaseMargin, "dispatch", dispatcher.Job)

	server := app.NewServer(app.Deps{
		Auth:     auth.NewService(store, cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiresIn),
		Requests: requests.NewService(store, lg.Component("requests"), cfg.StatusOverride),
		Health:   store,
		Log:      lg.Component("http"),
		Location: cfg.Location,
	})
	httpSrv := app.StartHTTP(cfg.HTTPAddr, server.Router(), lg.Base)

	lg.Base.Info("campus maintenance server started",
		zap.String("version", version),
		zap.String("addr", cfg.HTTPAddr),
		zap.Strings("routes", app.Routes),
		zap.String("channel", cfg.Channel),
		zap.Bool("notifications_enabled", dispatcher.Enabled()),
		zap.Duration("dispatch_interval", cfg.DispatchInterval),
		zap.Bool("redis_lock", cfg.RedisAddr != ""),
	)
	if !dispatcher.Enabled() {
		lg.Base.Warn("messaging channel not configured, admin notifications are off")
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-httpSrv.Err():
		stop()
	}
	lg.Base.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		lg.Base.Warn("http shutdown", zap.Error(err))
	}
	runner.Wait()
	return serveErr
}

// buildChannel returns nil when the selected channel lacks credentials; the
// dispatcher then stays disabled.
func buildChannel(cfg *config.Config) (channel.Channel, error) {
	if !cfg.ChannelConfigured() {
		return nil, nil
	}
	switch cfg.Channel {
	case config.ChannelTelegram:
		tg, err := channel.NewTelegram(cfg.Telegram.BotToken)
		if err != nil {
			return nil, err
		}
		return tg, nil
	case config.ChannelTwilio:
		return channel.NewTwilio(cfg.Twilio.APIURL, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From), nil
	}
	return nil, errors.New("unknown channel " + cfg.Channel)
}
