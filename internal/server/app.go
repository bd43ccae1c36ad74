// Package server initializes and runs the objidx server: it opens the
// database, applies migrations, connects object storage and the optional
// presign cache, and serves the HTTP API until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/objidx/internal/blobstore"
	"github.com/dmitrijs2005/objidx/internal/logging"
	"github.com/dmitrijs2005/objidx/internal/server/cache"
	"github.com/dmitrijs2005/objidx/internal/server/config"
	"github.com/dmitrijs2005/objidx/internal/server/httpapi"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/objidx/internal/server/services"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	closers  []func() error
	ingest   *services.IngestService
	query    *services.QueryService
	resolver *services.LocatorService
}

// Seams for tests.
var (
	openDB       = func(dsn string) (*sql.DB, error) { return sql.Open("pgx", dsn) }
	newBlobStore = func(ctx context.Context, cfg blobstore.Config) (services.BlobStore, error) {
		s, err := blobstore.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	connectCache = func(ctx context.Context, url string) (services.PresignCache, func() error, error) {
		c, closeFn, err := cache.Connect(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return c, closeFn, nil
	}
	newRepoManager = repomanager.NewPostgresRepositoryManager
)

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	rm := newRepoManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.Close()
		return nil, err
	}

	store, err := newBlobStore(ctx, blobstore.Config{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("object storage init error: %w", err)
	}

	var pc services.PresignCache
	if c.RedisURL != "" {
		rc, closeFn, err := connectCache(ctx, c.RedisURL)
		if err != nil {
			app.Close()
			return nil, err
		}
		pc = rc
		app.closers = append(app.closers, closeFn)
	}

	app.resolver = services.NewLocatorService(db, rm, c, store, pc, logger.With("module", "locator"))
	app.ingest = services.NewIngestService(db, rm, c, app.resolver, store, logger.With("module", "ingest"))
	app.query = services.NewQueryService(db, rm)

	return app, nil
}

// Close releases the database and cache connections.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
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
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.ingest, app.query,
		app.resolver, app.db, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}
