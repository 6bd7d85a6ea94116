package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/docai/core/airflow"
	"github.com/docai/core/auth"
	"github.com/docai/core/dag"
	"github.com/docai/core/db"
	"github.com/docai/core/metrics"
	"github.com/docai/core/notify"
	"github.com/docai/core/tracker"
)

// run wires all components and serves the tracker until ctx is done.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	dbClient, dbErr := openDatabase(ctx, cfg.Database, logger)
	if dbErr != nil {
		return dbErr
	}
	defer dbClient.Close()

	var catalog dag.Catalog = dag.Registry{}
	var fileCatalog *dag.FileCatalog
	if cfg.CatalogPath != "" {
		fc, err := dag.NewFileCatalog(cfg.CatalogPath, logger)
		if err != nil {
			return fmt.Errorf("cannot load DAG catalog: %w", err)
		}
		catalog, fileCatalog = fc, fc
		logger.Info("DAG catalog loaded", "path", cfg.CatalogPath, "dags",
			len(fc.Ids()))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var notifier notify.Sender = notify.NewLogsErr(logger)
	if cfg.NotifyWebhook != "" {
		notifier = notify.NewWebhook(cfg.NotifyWebhook, nil, logger)
	}

	signaler := airflow.NewClient(airflow.Config{
		BaseUrl:     cfg.Airflow.BaseUrl,
		Username:    cfg.Airflow.Username,
		Password:    cfg.Airflow.Password,
		Timeout:     cfg.Airflow.Timeout,
		MaxAttempts: cfg.Airflow.MaxAttempts,
	}, nil, logger)

	t := tracker.New(
		tracker.NewDbRegistry(dbClient, logger), signaler, catalog,
		cfg.trackerConfig(), logger, notifier, m,
	)
	authn := auth.NewAuthenticator([]byte(cfg.JwtSecret), cfg.JwtIssuer, 24*time.Hour)
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           t.Handler(authn, metricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting tracker", "port", cfg.Port, "db",
			cfg.Database.Driver)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down tracker")
		return server.Shutdown(shutdownCtx)
	})
	if fileCatalog != nil {
		g.Go(func() error {
			err := fileCatalog.Watch(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// openDatabase connects to the database, retrying with exponential backoff
// until DatabaseConfig.ConnectFor elapses.
func openDatabase(ctx context.Context, cfg DatabaseConfig, logger *slog.Logger) (*db.Client, error) {
	var client *db.Client
	connect := func() error {
		var err error
		switch cfg.Driver {
		case db.Postgres:
			client, err = openPostgres(ctx, cfg, logger)
		default:
			client, err = db.NewSqliteClient(cfg.SqlitePath, logger)
		}
		if err != nil {
			return err
		}
		if pingErr := client.Ping(ctx); pingErr != nil {
			client.Close()
			return pingErr
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cfg.ConnectFor
	err := backoff.RetryNotify(connect, backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			logger.Warn("Cannot connect to the database, retrying", "driver",
				cfg.Driver, "next", next, "err", err)
		})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s database: %w", cfg.Driver,
			err)
	}
	return client, nil
}

func openPostgres(ctx context.Context, cfg DatabaseConfig, logger *slog.Logger) (*db.Client, error) {
	conn, err := sql.Open("postgres", cfg.PgDsn)
	if err != nil {
		return nil, err
	}
	if pingErr := conn.PingContext(ctx); pingErr != nil {
		conn.Close()
		return nil, pingErr
	}
	client, cErr := db.NewPostgresClient(ctx, conn, cfg.PgName, logger)
	if cErr != nil {
		conn.Close()
		return nil, cErr
	}
	return client, nil
}
