// Package main runs the expense approval workflow server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	app "github.com/oddo-hq/expenseflow/internal/app"
	"github.com/oddo-hq/expenseflow/internal/app/httpapi"
	"github.com/oddo-hq/expenseflow/internal/app/services/currency"
	"github.com/oddo-hq/expenseflow/internal/app/storage/postgres"
	"github.com/oddo-hq/expenseflow/internal/config"
	"github.com/oddo-hq/expenseflow/pkg/logger"
)

func main() {
	log := logger.NewDefault("server")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(1)
	}

	stores := app.Stores{}
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(cfg)
		if err != nil {
			log.WithError(err).Error("open database")
			os.Exit(1)
		}
		defer db.Close()

		store := postgres.New(db)
		stores = app.Stores{Users: store, Expenses: store, Approvals: store}
		log.Info("using postgres store")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory store")
	}

	opts := app.Options{Chain: config.LoadChainOrDefault(cfg.ChainPath)}
	if cfg.ExchangeRateURL != "" {
		converter, err := currency.NewHTTPConverter(nil, cfg.ExchangeRateURL, cfg.ExchangeRateKey, log)
		if err != nil {
			log.WithError(err).Error("configure currency converter")
			os.Exit(1)
		}
		opts.Converter = converter
	} else {
		log.Warn("EXCHANGE_RATE_URL not set; submissions record identity conversions")
	}

	application := app.New(stores, opts, log)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewHandler(application),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}
}

func openDatabase(cfg config.Config) (*sql.DB, error) {
	m, err := migrate.New("file://"+cfg.MigrationsDir, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, err
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return nil, srcErr
	}
	if dbErr != nil {
		return nil, dbErr
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
