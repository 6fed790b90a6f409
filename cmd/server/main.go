package main // Entry point package

import (
	"context"   // context carries the shutdown signal
	"os"        // os provides exit codes
	"os/signal" // signal cancels the context on SIGINT/SIGTERM
	"syscall"   // syscall names SIGTERM

	"github.com/sirupsen/logrus" // structured logging

	"github.com/iliyamo/setlist-vote/internal/app"     // component wiring
	"github.com/iliyamo/setlist-vote/internal/config"  // environment config loader
	"github.com/iliyamo/setlist-vote/internal/logging" // logger construction
)

func main() {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.IsProd(), cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialise")
	}

	runErr := a.Run(ctx)
	if err := a.Close(); err != nil {
		log.WithError(err).Warn("error closing connections")
	}
	if runErr != nil {
		log.WithError(runErr).Error("server stopped")
		os.Exit(1)
	}
	log.Info("server stopped")
}
