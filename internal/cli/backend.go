package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/catalog"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/config"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/pgstore"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/store"
)

// app is everything a command needs to talk to the configured database.
type app struct {
	cfg     *config.Config
	engine  *history.Engine
	backend catalog.Backend
	svc     *catalog.Service

	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
	metrics  bool
	closeDB  func() error
}

// openApp loads configuration, configures logging and opens the backend.
// Postgres schemas are migrated only when migrate is set; SQLite applies its
// schema on every open.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command, migrate bool) (*app, error) {
	cfg, err := config.Load(opts.Config, config.WithDatabase(opts.DB))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	setupLogging(opts, cfg, cmd)

	types, err := config.Registry(cfg.History.TypesFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load owner types", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	engine, err := history.New(cfg.Engine(), types, history.WithMeterProvider(provider))
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, WrapExitError(ExitCommandError, "invalid history configuration", err)
	}

	a := &app{
		cfg:      cfg,
		engine:   engine,
		provider: provider,
		reader:   reader,
		metrics:  opts.Metrics,
	}

	switch cfg.Database.Driver {
	case "postgres":
		pg, err := pgstore.Open(ctx, cfg.Database.DSN)
		if err != nil {
			_ = provider.Shutdown(ctx)
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		if migrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				_ = provider.Shutdown(ctx)
				return nil, WrapExitError(ExitCommandError, "failed to migrate database", err)
			}
		}
		a.backend = pg
		a.closeDB = func() error {
			pg.Close()
			return nil
		}
	default:
		st, err := store.Open(cfg.Database.Path)
		if err != nil {
			_ = provider.Shutdown(ctx)
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		a.backend = st
		a.closeDB = st.Close
	}
	slog.Debug("database ready", "driver", cfg.Database.Driver)

	a.svc = catalog.NewService(a.backend, engine)
	return a, nil
}

// Close reports metrics when requested and releases the database.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.metrics {
		if err := a.reportMetrics(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
	}
	if err := a.closeDB(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

// reportMetrics logs every counter data point collected during the command.
func (a *app) reportMetrics(ctx context.Context) error {
	var rm metricdata.ResourceMetrics
	if err := a.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				args := []any{"metric", m.Name, "value", dp.Value}
				for _, kv := range dp.Attributes.ToSlice() {
					args = append(args, string(kv.Key), kv.Value.Emit())
				}
				slog.Info("history metric", args...)
			}
		}
	}
	return nil
}

// setupLogging installs a text handler on the command's stderr. --verbose
// forces debug; otherwise log.level from the config applies.
func setupLogging(opts *RootOptions, cfg *config.Config, cmd *cobra.Command) {
	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// withApp opens the app, runs fn and closes it, logging close failures.
func withApp(opts *RootOptions, cmd *cobra.Command, migrate bool, fn func(context.Context, *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, opts, cmd, migrate)
	if err != nil {
		code, _ := classifyError(err)
		_ = newFormatter(opts, cmd).Error(code, err.Error(), nil)
		return err
	}
	defer func() {
		if closeErr := a.Close(ctx); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}
