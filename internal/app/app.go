// Package app wires configuration, logging, storage and telemetry into the
// services the CLI commands run against.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/lewandolfski/driving-school-scraper/internal/config"
	"github.com/lewandolfski/driving-school-scraper/internal/logging"
	"github.com/lewandolfski/driving-school-scraper/internal/progress"
	"github.com/lewandolfski/driving-school-scraper/internal/progress/sinks"
	"github.com/lewandolfski/driving-school-scraper/internal/storage/postgres"
	"github.com/lewandolfski/driving-school-scraper/internal/storage/sqlite"
	"github.com/lewandolfski/driving-school-scraper/internal/store"
)

// App holds the long-lived services shared by the CLI commands.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Schools  store.SchoolRepository
	Progress store.ProgressRepository
	Registry *prometheus.Registry
	Hub      *progress.Hub

	closers []func()
}

// New builds the application from the config file at cfgPath ("" loads
// defaults and environment only). Storage schemas are created on the spot
// so a fresh database works without a migration step.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector())

	if err := a.initStorage(ctx); err != nil {
		_ = logger.Sync()
		return nil, err
	}

	promSink, err := sinks.NewPrometheusSink(a.Registry)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Hub = progress.NewHub(
		progress.Config{Logger: logger},
		sinks.NewLogSink(logger),
		promSink,
	)

	logger.Info("application initialized",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("site", cfg.Site.BaseURL))
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.Config.DB.Driver {
	case "postgres":
		schools, err := postgres.NewSchoolStore(ctx, a.Config.DB.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, schools.Close)
		if err := schools.Init(ctx); err != nil {
			return err
		}
		prog, err := postgres.NewProgressStore(ctx, a.Config.DB.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, prog.Close)
		if err := prog.Init(ctx); err != nil {
			return err
		}
		a.Schools, a.Progress = schools, prog
	case "sqlite":
		db, err := sqlite.Open(a.Config.DB.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		schools, err := sqlite.NewSchoolStore(db)
		if err != nil {
			return err
		}
		if err := schools.Init(ctx); err != nil {
			return err
		}
		prog, err := sqlite.NewProgressStore(db)
		if err != nil {
			return err
		}
		if err := prog.Init(ctx); err != nil {
			return err
		}
		a.Schools, a.Progress = schools, prog
	default:
		return fmt.Errorf("unknown db driver %q", a.Config.DB.Driver)
	}
	return nil
}

// Close flushes telemetry and releases storage handles.
func (a *App) Close(ctx context.Context) {
	if a.Hub != nil {
		if err := a.Hub.Close(ctx); err != nil {
			a.Logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.Logger.Sync()
}
