// Package server initializes and runs the tracker service. It opens the
// database, applies migrations, and starts the HTTP API alongside the
// scheduled inactivity sweep, with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wikimaint/adminwatch/internal/api"
	"github.com/wikimaint/adminwatch/internal/config"
	"github.com/wikimaint/adminwatch/internal/evaluator"
	"github.com/wikimaint/adminwatch/internal/logging"
	"github.com/wikimaint/adminwatch/internal/repositories/repomanager"
	"github.com/wikimaint/adminwatch/internal/sweep"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	rm     repomanager.RepositoryManager
	eval   *evaluator.Evaluator
	sweep  *sweep.Worker
}

func NewApp(c *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()

	eval := evaluator.New(db, rm, evaluator.PolicyConfig{
		InactivityThreshold: c.InactivityThreshold,
		DesysopGrace:        c.DesysopGrace,
		RiskCeiling:         c.RiskCeiling,
		CountWindow:         c.CountWindow,
		Namespaces:          c.Namespaces,
	}, logger)

	worker := sweep.New(db, rm, eval, c.SweepInterval, logger)

	return &App{
		config: c,
		logger: logger,
		db:     db,
		rm:     rm,
		eval:   eval,
		sweep:  worker,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.ListenAddr,
		Handler:           api.NewRouter(app.config, app.db, app.rm, app.eval, app.logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server error", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting tracker")

	app.initSignalHandler(cancelFunc)

	if err := app.rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweep.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "tracker stopped")
	return nil
}
