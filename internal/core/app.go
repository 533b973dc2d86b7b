package core

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/vrsandeep/litpush/internal/cache"
	"github.com/vrsandeep/litpush/internal/config"
	"github.com/vrsandeep/litpush/internal/db"
	"github.com/vrsandeep/litpush/internal/delivery"
	"github.com/vrsandeep/litpush/internal/ingest"
	"github.com/vrsandeep/litpush/internal/jobs"
	"github.com/vrsandeep/litpush/internal/logging"
	"github.com/vrsandeep/litpush/internal/scheduler"
	"github.com/vrsandeep/litpush/internal/search"
	"github.com/vrsandeep/litpush/internal/store"
	"github.com/vrsandeep/litpush/internal/websocket"
	"github.com/vrsandeep/litpush/migrations"
)

// Version is reported by the API.
const Version = "0.1.0"

// Deps are the outside-world ports of the App. Tests pass fakes; New builds
// the production ones from the config.
type Deps struct {
	DB        *sql.DB
	Redis     *redis.Client // nil runs without a result cache
	Search    search.Provider
	Transport delivery.Transport
	Registry  jobs.DeferredRegistry
}

// lifecycle is implemented by registries that own goroutines.
type lifecycle interface {
	Start()
	Stop()
}

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client

	store     *store.Store
	cache     *cache.Cache
	channels  *delivery.Pool
	evictor   *ingest.Evictor
	pipeline  *ingest.Pipeline
	registry  jobs.DeferredRegistry
	pool      *jobs.Pool
	manager   *jobs.Manager
	hub       *websocket.Hub
	scheduler *scheduler.Scheduler
}

// New sets up and returns a new App instance. It opens the database, runs
// migrations and builds the production search, cache and mail adapters.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger = logging.OrDiscard(logger)

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(database, migrations.FS, logger); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// Cache failures degrade to misses, so an unreachable Redis is not fatal.
		logger.Warn("redis unreachable, cache lookups will miss", "addr", cfg.Redis.Addr, "error", err)
	}

	app, err := Build(cfg, Deps{
		DB:        database,
		Redis:     rdb,
		Search:    search.NewPubMed(cfg.Search.BaseURL, cfg.Search.APIKey, cfg.Search.Timeout),
		Transport: delivery.SMTPTransport{Timeout: cfg.SMTP.Timeout},
		Registry:  jobs.NewGocronRegistry(logger),
	}, logger)
	if err != nil {
		rdb.Close()
		database.Close()
		return nil, err
	}
	logger.Info("core application setup complete")
	return app, nil
}

// Build wires every component on top of deps. The database must already be
// migrated.
func Build(cfg *config.Config, deps Deps, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if deps.DB == nil || deps.Search == nil || deps.Transport == nil || deps.Registry == nil {
		return nil, fmt.Errorf("core: database, search, transport and registry are required")
	}
	logger = logging.OrDiscard(logger)
	loc := cfg.Location()

	a := &App{
		config:   cfg,
		logger:   logger,
		db:       deps.DB,
		redis:    deps.Redis,
		registry: deps.Registry,
		manager:  jobs.NewManager(),
		hub:      websocket.NewHubWithLogger(logger),
	}
	a.store = store.New(deps.DB, logger)

	if err := delivery.ResolveProviders(a.store, cfg.SMTP, logger); err != nil {
		return nil, fmt.Errorf("failed to resolve delivery channels: %w", err)
	}
	a.channels = delivery.NewPool(a.store, deps.Transport, cfg.SMTP, loc, logger)
	a.evictor = ingest.NewEvictor(a.store, cfg.Retention.Ceiling, cfg.Retention.Batch, logger)

	opts := ingest.Options{Evictor: a.evictor, SearchTimeout: cfg.Search.Timeout}
	if deps.Redis != nil {
		a.cache = cache.New(deps.Redis, cache.Options{
			Prefix:   cfg.Cache.Prefix,
			BaseTTL:  cfg.Cache.BaseTTL,
			MinTTL:   cfg.Cache.MinTTL,
			MaxTTL:   cfg.Cache.MaxTTL,
			Location: loc,
		}, logger)
		// Assigned only when set so the interface never holds a nil pointer.
		opts.Cache = a.cache
	}
	a.pipeline = ingest.NewPipeline(a.store, deps.Search, a.channels, opts, logger)

	a.pool = jobs.NewPool(cfg.Scheduler.Workers, cfg.Scheduler.QueueSize, logger)
	a.scheduler = scheduler.New(a.store, a.registry, a.pool, a.manager, a.pipeline, a.hub,
		scheduler.Options{Location: loc, DefaultTime: cfg.Scheduler.DefaultTime}, logger)
	return a, nil
}

// Start launches the hub, the workers and the registry, then arms every
// active subscription.
func (a *App) Start(ctx context.Context) error {
	go a.hub.Run()
	a.pool.Start()
	if lc, ok := a.registry.(lifecycle); ok {
		lc.Start()
	}
	if _, err := a.scheduler.RearmAll(ctx); err != nil {
		return fmt.Errorf("failed to arm subscriptions: %w", err)
	}
	return nil
}

// ApplyConfig re-applies the settings that can change at runtime.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.evictor.SetLimits(cfg.Retention.Ceiling, cfg.Retention.Batch)
	a.logger.Info("configuration reloaded", "retention_ceiling", cfg.Retention.Ceiling, "retention_batch", cfg.Retention.Batch)
}

// Close gracefully closes the application's resources.
func (a *App) Close() {
	if lc, ok := a.registry.(lifecycle); ok {
		lc.Stop()
	}
	if a.pool != nil {
		a.pool.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) Config() *config.Config          { return a.config }
func (a *App) Logger() *slog.Logger            { return a.logger }
func (a *App) DB() *sql.DB                     { return a.db }
func (a *App) Redis() *redis.Client            { return a.redis }
func (a *App) Store() *store.Store             { return a.store }
func (a *App) Cache() *cache.Cache             { return a.cache }
func (a *App) Channels() *delivery.Pool        { return a.channels }
func (a *App) Evictor() *ingest.Evictor        { return a.evictor }
func (a *App) Pipeline() *ingest.Pipeline      { return a.pipeline }
func (a *App) JobManager() *jobs.Manager       { return a.manager }
func (a *App) WsHub() *websocket.Hub           { return a.hub }
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }
