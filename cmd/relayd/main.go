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

	"github.com/calltap/calltap/internal/config"
	"github.com/calltap/calltap/internal/relay"
	"github.com/calltap/calltap/internal/stt"
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

	var dialer stt.Dialer
	switch cfg.STT.Provider {
	case "google":
		dialer = &stt.GoogleDialer{SampleRate: cfg.STT.SampleRate}
	default:
		dialer = &stt.RealtimeDialer{
			URL:        cfg.STT.URL,
			Token:      cfg.STT.Token,
			SampleRate: cfg.STT.SampleRate,
			Encoding:   cfg.STT.Encoding,
		}
	}

	server := relay.NewServer(&cfg.Relay, dialer)
	r := server.SetupRouter(ctx, cfg.Mode)
	addr := fmt.Sprintf(":%d", cfg.Relay.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("provider", cfg.STT.Provider).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
