package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/careslot/scheduling/internal/appointment"
	"github.com/careslot/scheduling/internal/availability"
	"github.com/careslot/scheduling/internal/config"
	"github.com/careslot/scheduling/internal/db"
	"github.com/careslot/scheduling/internal/notify"
	redisclient "github.com/careslot/scheduling/internal/redis"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sweeper").Logger()
	log.Info().Msg("sweeper starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Dur("interval", cfg.SweepInterval).Msg("configured")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	availStore := availability.NewPgStore(pgPool, cfg.MaxWindowsPerDay)
	locker := redisclient.NewRedisBookingLocker(rdb, cfg.LockTTL, cfg.LockWait)

	// The sweeper publishes the standard state-change events, but this
	// binary holds no live sessions, so they go nowhere locally.
	svc := appointment.NewService(repo, availStore, locker, notify.NopPublisher{}, cfg, log)

	sweeper := appointment.NewSweeper(svc, cfg.SweepInterval, cfg.SweepFailThreshold, log)
	sweeper.Run(rootCtx)

	log.Info().Msg("sweeper stopped")
}
