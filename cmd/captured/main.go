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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/calltap/calltap/internal/bridge"
	"github.com/calltap/calltap/internal/capture"
	"github.com/calltap/calltap/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	orch := capture.NewOrchestrator(
		func() capture.Engine { return capture.NewMixEngine() },
		capture.LoopbackResolver{},
		capture.Options{
			StartTimeout: cfg.Capture.StartTimeout,
			StopTimeout:  cfg.Capture.StopTimeout,
			ChunkCadence: cfg.Capture.ChunkCadence,
			LocalSource:  func() capture.Source { return capture.NewMicSource(cfg.Capture.MicDevice) },
		},
	)

	r := bridge.SetupRouter(ctx, cfg.Mode, &cfg.Capture, orch)
	addr := fmt.Sprintf(":%d", cfg.Capture.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("capture daemon started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := orch.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("stop recording on shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
