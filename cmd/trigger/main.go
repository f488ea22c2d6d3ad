package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petroleumjelliffe/socialsync/internal/config"
	"github.com/petroleumjelliffe/socialsync/internal/logging"
	"github.com/petroleumjelliffe/socialsync/internal/trigger"
)

func main() {
	configFile := flag.String("config", "", "config file (default is ./config/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger := logging.Logger()
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.Component("main")

	if err := cfg.ValidateForTrigger(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if len(cfg.Trigger.AllowedScripts) == 0 {
		log.Warn().Msg("No scripts are allow-listed; every webhook will be rejected")
	}

	server := trigger.NewServer(trigger.Options{
		ScriptDir:      cfg.Trigger.ScriptDir,
		AllowedScripts: cfg.Trigger.AllowedScripts,
		RateLimitRPM:   cfg.Trigger.RateLimitRPM,
	}, trigger.NewExecLauncher(cfg.Trigger.Interpreter))

	httpServer := &http.Server{
		Addr:              cfg.Trigger.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Str("script_dir", cfg.Trigger.ScriptDir).
			Strs("allowed_scripts", cfg.Trigger.AllowedScripts).
			Msg("Starting webhook listener")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
