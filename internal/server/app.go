// Package server wires storage, services and the HTTP API together and runs
// them until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/dmitrijs2005/gophblog/internal/server/config"
	"github.com/dmitrijs2005/gophblog/internal/server/httpapi"
	"github.com/dmitrijs2005/gophblog/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophblog/internal/server/services"
	"github.com/dmitrijs2005/gophblog/internal/server/storage"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
)

// dbConnectTimeout bounds the startup wait for Postgres.
const dbConnectTimeout = 30 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	repos   repomanager.RepositoryManager
	rdb     *redis.Client
	store   *storage.BreakerStore
	metrics *httpapi.Metrics

	auth    *services.AuthService
	posts   *services.PostService
	media   *services.MediaService
	cleanup *services.CleanupService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := dbx.Open(ctx, repomanager.DriverName, c.DatabaseDSN, dbConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	s3, err := storage.NewS3Store(ctx, storage.S3Config{
		Region:    c.S3Region,
		Bucket:    c.S3Bucket,
		Endpoint:  c.S3BaseEndpoint,
		AccessKey: c.S3RootUser,
		SecretKey: c.S3RootPassword,
		Timeout:   c.StorageTimeout,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}
	store := storage.NewBreakerStore(s3, storage.DefaultBreakerSettings, logger)

	repos := repomanager.NewPostgresRepositoryManager()
	tracker := services.NewReferenceTracker(repos, c.MediaRetention, logger)

	app := &App{
		config:  c,
		logger:  logger,
		db:      db,
		repos:   repos,
		store:   store,
		metrics: httpapi.NewMetrics(),
		auth:    services.NewAuthService(db, repos, c, logger),
		posts:   services.NewPostService(db, repos, tracker),
		media:   services.NewMediaService(db, repos, store, logger),
		cleanup: services.NewCleanupService(db, repos, store, c, logger),
	}

	if c.RedisAddr != "" {
		app.rdb = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	}

	return app, nil
}

// Auth exposes the account service to admin tooling.
func (app *App) Auth() *services.AuthService { return app.auth }

// Cleanup exposes the sweep to admin tooling.
func (app *App) Cleanup() *services.CleanupService { return app.cleanup }

// Migrate applies pending schema migrations.
func (app *App) Migrate(ctx context.Context) error {
	return app.repos.RunMigrations(ctx, app.db)
}

// Close releases the database and redis connections.
func (app *App) Close() error {
	var group errs.Group
	group.Add(app.db.Close())
	if app.rdb != nil {
		group.Add(app.rdb.Close())
	}
	if s, ok := app.logger.(*logging.ZapLogger); ok {
		_ = s.Sync()
	}
	return group.Err()
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

type breakerState interface {
	State() string
}

// healthCheck reports the service unhealthy when the database does not
// answer or the object store circuit is open.
func healthCheck(ping func(ctx context.Context) error, store breakerState) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if st := store.State(); st == "open" {
			return fmt.Errorf("object store circuit %s: %w", st, common.ErrStorageUnavailable)
		}
		return nil
	}
}

func (app *App) httpServer() *httpapi.Server {
	deps := httpapi.Deps{
		Auth:    app.auth,
		Posts:   app.posts,
		Media:   app.media,
		Cleanup: app.cleanup,
		Metrics: app.metrics,
		Health:  healthCheck(app.db.PingContext, app.store),
	}
	if app.rdb != nil {
		deps.Limiter = ratelimit.NewLimiter(app.rdb, "signin", app.config.LoginRateLimit, app.config.LoginRateWindow)
	}

	return httpapi.NewServer(app.config.HTTPAddr, app.logger, deps, httpapi.Options{
		CronSecret:    app.config.CronSecret,
		MaxUploadSize: app.config.MaxUploadSize,
	})
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer().Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run migrates the schema, then serves HTTP and, when SweepInterval is set,
// runs the cleanup chore, until ctx is cancelled or a signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.Migrate(ctx); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.SweepInterval > 0 {
		chore := newCleanupChore(app.config.SweepInterval, app.cleanup, app.auth, app.metrics, app.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			chore.Run(ctx)
		}()
	}

	wg.Wait()

	return nil
}
