package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sentraguard/internal/alerts"
	"sentraguard/internal/auth"
	"sentraguard/internal/bots"
	"sentraguard/internal/config"
	"sentraguard/internal/db"
	"sentraguard/internal/detect"
	"sentraguard/internal/events"
	"sentraguard/internal/logging"
	"sentraguard/internal/metrics"
	"sentraguard/internal/notify"
	"sentraguard/internal/processor"
	"sentraguard/internal/response"
	"sentraguard/internal/scan"
	"sentraguard/internal/shutdown"
)

// app holds the wired engine shared by all commands.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	users     *auth.Store
	authSvc   *auth.Service
	events    *events.Store
	bots      *bots.Store
	alerts    *alerts.Store
	shutdowns *shutdown.Store
	machine   *shutdown.Machine
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	publisher *notify.Publisher
	scanner   *scan.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	logger := logging.New()

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	th, err := detect.LoadThresholds(cfg.DetectorsPath)
	if err != nil {
		return nil, fmt.Errorf("load detector thresholds: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.RunMigrations(ctx, dbConn, "sql"); err != nil {
		dbConn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		db:        dbConn,
		users:     auth.NewStore(dbConn),
		events:    events.NewStore(dbConn),
		bots:      bots.NewStore(dbConn),
		alerts:    alerts.NewStore(dbConn),
		shutdowns: shutdown.NewStore(dbConn),
		registry:  prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	created, err := a.users.SeedFromFile(ctx, cfg.UsersPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("seed users: %w", err)
	}
	if created > 0 {
		logger.Info("seeded users", "count", created, "path", cfg.UsersPath)
	}
	a.authSvc = auth.NewService(a.users, cfg.JWTSecret, cfg.TokenTTL)

	if cfg.NATSURL != "" {
		pub, err := notify.Connect(cfg.NATSURL, logger)
		if err != nil {
			// Notifications stay in the database; live fan-out is optional.
			logger.Warn("nats unavailable, live notifications disabled", "err", err)
		} else {
			a.publisher = pub
		}
	}

	machineOpts := []shutdown.Option{
		shutdown.WithAutoRestoreWindow(cfg.AutoRestore),
		shutdown.WithObserver(a.metrics),
	}
	procOpts := []processor.Option{
		processor.WithMetrics(a.metrics),
		processor.WithWorkers(cfg.Workers),
	}
	if a.publisher != nil {
		machineOpts = append(machineOpts, shutdown.WithAnnouncer(a.publisher))
		procOpts = append(procOpts, processor.WithPublisher(a.publisher))
	}
	a.machine = shutdown.NewMachine(a.shutdowns, a.shutdowns, auth.NewGate(a.users), logger, machineOpts...)

	controller := response.NewController(a.shutdowns, a.machine, logger)
	proc := processor.New(a.alerts, controller, a.bots, logger, procOpts...)
	a.scanner = scan.New(a.bots, a.machine, a.alerts, a.events, detect.DefaultSet(th, loc), proc, logger,
		scan.WithTimeout(cfg.ScanTimeout),
		scan.WithMetrics(a.metrics),
	)
	return a, nil
}

func (a *app) Close() {
	if a.machine != nil {
		a.machine.Close()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("close db", "err", err)
	}
}

// withApp builds the engine for one command run.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
