package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/gumroad_downloader/internal/catalog"
	"github.com/italolelis/gumroad_downloader/internal/config"
	"github.com/italolelis/gumroad_downloader/internal/downloader"
	"github.com/italolelis/gumroad_downloader/internal/http/status"
	"github.com/italolelis/gumroad_downloader/internal/library"
	"github.com/italolelis/gumroad_downloader/internal/logctx"
	"github.com/italolelis/gumroad_downloader/internal/notifier"
	"github.com/italolelis/gumroad_downloader/internal/session"
	"github.com/italolelis/gumroad_downloader/internal/storage/sqlite"
	"github.com/italolelis/gumroad_downloader/internal/telemetry"
	"github.com/italolelis/gumroad_downloader/internal/transfer"
)

const (
	serviceName     = "gumroad_downloader"
	shutdownTimeout = 10 * time.Second
)

// app holds everything a command needs. It is built once per invocation.
type app struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	db       *sqlite.DB
	store    catalog.Store
	pool     *session.Pool
	status   *status.Handler
	notifier notifier.Notifier
	server   *http.Server
}

// setup loads the configuration and opens every resource. Any failure here is fatal.
func setup(ctx context.Context, opts *rootOptions) (context.Context, *app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return ctx, nil, err
	}

	if opts.metricsAddr != "" {
		cfg.MetricsAddress = opts.metricsAddr
	}

	runID := uuid.NewString()
	logger := logctx.New(os.Stdout, cfg.SlogLevel()).With("run_id", runID)
	slog.SetDefault(logger)

	ctx = logctx.WithLogger(ctx, logger)

	logger.Info("gumroad downloader starting...", "version", version, "log_level", cfg.LogLevel, "folder", cfg.Folder)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled || cfg.MetricsAddress != "",
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		DiskPath:       cfg.Folder,
	})
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to start telemetry: %w", err)
	}

	a := &app{
		cfg:      cfg,
		tel:      tel,
		status:   status.NewHandler(tel, runID),
		notifier: notifier.New(cfg.DiscordWebhookURL),
	}

	// =========================================================================
	// Start Database
	a.db, err = sqlite.Open(cfg.DBPath)
	if err != nil {
		a.Close(ctx)

		if errors.Is(err, sqlite.ErrLocked) {
			return ctx, nil, fmt.Errorf("catalog %s is used by another run: %w", cfg.DBPath, err)
		}

		return ctx, nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	a.store = sqlite.NewInstrumentedCatalogRepository(sqlite.NewCatalogRepository(a.db.DB), tel)

	// =========================================================================
	// Start Session Pool
	a.pool, err = session.NewPool(session.OptionsFromConfig(cfg, tel))
	if err != nil {
		a.Close(ctx)

		return ctx, nil, fmt.Errorf("failed to build session pool: %w", err)
	}

	// =========================================================================
	// Start Status Server
	if cfg.MetricsAddress != "" {
		a.server = status.NewServer(ctx, cfg.MetricsAddress, a.status.Routes())

		go func() {
			logger.Info("status server listening", "addr", cfg.MetricsAddress)

			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server stopped", "err", err)
			}
		}()
	}

	return ctx, a, nil
}

// Close releases everything setup opened. It must run even when the command context is cancelled.
func (a *app) Close(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			logger.Error("failed to gracefully shutdown the status server", "err", err)
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Error("failed to close catalog", "err", err)
		}
	}

	if err := a.tel.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown telemetry", "err", err)
	}
}

// synchronize refreshes the library, then the product details of the selected creators.
func (a *app) synchronize(ctx context.Context) (transfer.Report, error) {
	syncer := library.NewSynchronizer(a.pool, a.store, config.LibraryURL, a.cfg.Threads, a.tel)

	a.status.SetPhase(status.PhaseSyncingLibrary)

	if err := syncer.SyncLibrary(ctx); err != nil {
		return transfer.Report{}, err
	}

	a.status.SetPhase(status.PhaseSyncingProducts)

	if !a.cfg.OnlyConfiguredCreators() {
		return syncer.SyncAllProducts(ctx), ctx.Err()
	}

	var report transfer.Report

	for _, c := range a.cfg.Creators {
		if ctx.Err() != nil {
			break
		}

		report.Merge(syncer.SyncProducts(ctx, c.ID))
	}

	return report, ctx.Err()
}

// download mirrors the product files of the selected creators into the destination folder.
func (a *app) download(ctx context.Context) (transfer.Report, error) {
	logger := logctx.LoggerFromContext(ctx)

	a.status.SetPhase(status.PhaseDownloading)

	creators, err := a.targetCreators(ctx)
	if err != nil {
		return transfer.Report{}, err
	}

	tasks, err := downloader.BuildTasks(ctx, a.store, a.cfg.Folder, config.BaseURL, creators)
	if err != nil {
		return transfer.Report{}, fmt.Errorf("failed to build download tasks: %w", err)
	}

	for _, c := range creators {
		logger.Info("downloading everything from creator", "creator_id", c.ID, "creator_name", c.Name)
	}

	d := downloader.NewDownloader(a.pool, a.cfg.Threads, a.cfg.IdleTimeout, a.tel)

	return d.Run(ctx, tasks), ctx.Err()
}

// targetCreators returns the configured creators, or every catalog creator when the list is not exclusive.
// A configured creator without a name falls back to the catalog name.
func (a *app) targetCreators(ctx context.Context) ([]catalog.Creator, error) {
	if !a.cfg.OnlyConfiguredCreators() {
		creators, err := a.store.GetCreators(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read creators: %w", err)
		}

		return creators, nil
	}

	creators := make([]catalog.Creator, 0, len(a.cfg.Creators))

	for _, c := range a.cfg.Creators {
		name := c.Name

		if name == "" {
			known, err := a.store.GetCreator(ctx, c.ID)

			switch {
			case err == nil:
				name = known.Name
			case !errors.Is(err, catalog.ErrNotFound):
				return nil, fmt.Errorf("failed to read creator %s: %w", c.ID, err)
			}
		}

		creators = append(creators, catalog.Creator{ID: c.ID, Name: name})
	}

	return creators, nil
}

// finish reports a run and sends the summary to the notifier.
func (a *app) finish(ctx context.Context, title string, report transfer.Report) {
	logger := logctx.LoggerFromContext(ctx)

	a.status.SetPhase(status.PhaseFinished)

	printReport(os.Stdout, title, report)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := a.notifier.Notify(ctx, notifier.Summary(title, report)); err != nil {
		logger.Error("failed to send notification", "err", err)
	}
}
