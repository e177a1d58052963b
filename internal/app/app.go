package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"FuelPriceMonitor/internal/api"
	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/detector"
	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/infrastructure/email"
	"FuelPriceMonitor/internal/infrastructure/kafka"
	"FuelPriceMonitor/internal/infrastructure/lock"
	"FuelPriceMonitor/internal/infrastructure/metrics"
	"FuelPriceMonitor/internal/infrastructure/parser"
	"FuelPriceMonitor/internal/infrastructure/scheduler"
	"FuelPriceMonitor/internal/infrastructure/storage"
	"FuelPriceMonitor/internal/infrastructure/telegram"
	"FuelPriceMonitor/internal/infrastructure/webhook"
	"FuelPriceMonitor/internal/logging"
	"FuelPriceMonitor/internal/normalizer"
	"FuelPriceMonitor/internal/notify"
	"FuelPriceMonitor/internal/ports"
	"FuelPriceMonitor/internal/scanner"
	"FuelPriceMonitor/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Repository
	scheduler *usecase.Scheduler
	server    *http.Server
	closers   []io.Closer
}

// New opens storage and builds every adapter named in cfg. Sinks without
// configuration are left out of the fan-out.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	loc := cfg.Scheduler.Location()

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &Application{cfg: cfg, logger: baseLogger, store: store}
	a.closers = append(a.closers, store)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	httpClient := &http.Client{Timeout: cfg.Pipeline.FetchTimeout}
	scanners := scanner.NewRegistry(
		parser.NewHTMLTableScanner(httpClient),
		parser.NewJSONFeedScanner(httpClient),
	)
	source := parser.NewStrategySource(scanners, cfg.Sources, cfg.Pipeline.SourceRate, baseLogger.With("component", "source"))

	sinks, err := a.buildSinks(cfg.Notifications)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	fanout := notify.NewFanout(baseLogger.With("component", "notify"), recorder, sinks...)

	norm := normalizer.New(cfg.Normalizer, loc)
	det := detector.New(cfg.Detector)
	coordinator := usecase.NewCoordinator(usecase.CoordinatorDeps{
		Source:     source,
		Store:      store,
		Normalizer: norm,
		Detector:   det,
		Sink:       fanout,
		Metrics:    recorder,
		Pipeline:   cfg.Pipeline,
		Location:   loc,
		Logger:     baseLogger.With("component", "coordinator"),
	})

	runLock, err := a.buildLock(ctx, cfg.Lock)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	driver, err := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, loc, baseLogger.With("component", "scheduler"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.scheduler = usecase.NewScheduler(driver, coordinator, runLock, baseLogger.With("component", "scheduler"))

	a.server = &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.NewRouter(api.Deps{
			Store:      store,
			Normalizer: norm,
			Registry:   registry,
			Logger:     baseLogger.With("component", "api"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	thresholds := det.Config()
	baseLogger.Info("application wired",
		"database", store.Dialect().Name,
		"sources", len(cfg.Sources),
		"scanners", scanners.Names(),
		"k", thresholds.K,
		"min_samples", thresholds.MinSamples,
		"percent_change", thresholds.PercentChange,
		"sinks", fanout.Len(),
		"cron", cfg.Scheduler.CronExpression,
		"timezone", loc.String(),
	)
	return a, nil
}

func (a *Application) buildSinks(cfg config.NotificationConfig) ([]ports.Sink, error) {
	var sinks []ports.Sink

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		sinks = append(sinks, telegram.NewNotifier(cfg.Telegram))
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, webhook.NewClient(cfg.Webhook))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := kafka.NewPublisher(cfg.Kafka, a.logger)
		if err != nil {
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		sinks = append(sinks, pub)
		a.closers = append(a.closers, pub)
	}
	if cfg.Email.Host != "" {
		sender, err := email.NewSender(cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("email sink: %w", err)
		}
		sinks = append(sinks, sender)
	}

	if len(sinks) == 0 {
		a.logger.Warn("no notification sinks configured; summaries are only logged and recorded")
	}
	return sinks, nil
}

func (a *Application) buildLock(ctx context.Context, cfg config.LockConfig) (ports.RunLock, error) {
	if cfg.RedisAddr == "" {
		return lock.NewLocal(), nil
	}
	rl, err := lock.NewRedis(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("run lock: %w", err)
	}
	a.closers = append(a.closers, rl)
	return rl, nil
}

// RunOnce performs a single pipeline execution for the current day.
// The bool is false when another instance holds the run lock.
func (a *Application) RunOnce(ctx context.Context) (domain.RunReport, bool) {
	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.scheduler.RunOnce(ctx, now)
}

// Run starts the scheduler and the HTTP API and blocks until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http api listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("serve http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler shutdown", "error", err)
	}
	return runErr
}

// Close releases storage and outbound clients.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
