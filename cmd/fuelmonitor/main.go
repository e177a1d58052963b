package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"FuelPriceMonitor/internal/app"
	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration (defaults to $FUEL_MONITOR_CONFIG)")
	once := flag.Bool("once", false, "run the pipeline once for today and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New("error", "text").Error("load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("build application", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	if *once {
		report, ran := application.RunOnce(ctx)
		if !ran || report.Status == domain.StatusFailed {
			stop()
			_ = application.Close()
			os.Exit(1)
		}
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		stop()
		_ = application.Close()
		os.Exit(1)
	}
}
