package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/RandomVoice/internal/adapters/http"
	wssignal "github.com/dkeye/RandomVoice/internal/adapters/signal"
	"github.com/dkeye/RandomVoice/internal/app"
	"github.com/dkeye/RandomVoice/internal/app/orch"
	"github.com/dkeye/RandomVoice/internal/config"
	"github.com/dkeye/RandomVoice/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger first so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(ctx context.Context, cfg *config.Config) error {
	policy, err := app.PolicyFor(cfg.SlowConsumer)
	if err != nil {
		return err
	}
	reg := app.NewRegistry()
	o := orch.New(reg, app.NewRoomManager(cfg.RoomCapacity), app.NewRelay(reg, policy))

	store, closeStore, err := newMediaStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctl := wssignal.NewSignalWSController(o, wssignal.Options{
		SendBuffer:           cfg.SendBuffer,
		ReadLimit:            cfg.ReadLimit,
		PingPeriod:           cfg.PingPeriod,
		PongWait:             cfg.PongWait,
		WriteWait:            cfg.WriteWait,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		AllowedOrigins:       cfg.AllowedOrigins,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{Orch: o, Signal: ctl, Media: store})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(cfg, r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("RandomVoice signaling server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})
	return g.Wait()
}

func newMediaStore(ctx context.Context, cfg *config.Config) (media.Store, func(), error) {
	if !cfg.Redis.Enabled {
		log.Info().Str("module", "media").Msg("using in-memory store")
		return media.NewMemoryStore(), func() {}, nil
	}
	store, err := media.NewRedisStore(ctx, media.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Str("module", "media").Msg("redis close")
		}
	}, nil
}
