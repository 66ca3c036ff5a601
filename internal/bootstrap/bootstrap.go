package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/media-upload-router/internal/config"
	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/flags"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
	"github.com/kirillkom/media-upload-router/internal/core/ports"
	"github.com/kirillkom/media-upload-router/internal/core/recommend"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
	"github.com/kirillkom/media-upload-router/internal/core/usecase"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/cache/redis"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/flagcatalog"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/inspect"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/offline/sqlite"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/queue/nats"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/report"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/resilience"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/storage/s3"
	"github.com/kirillkom/media-upload-router/internal/observability/metrics"
)

const catalogDebounce = 250 * time.Millisecond

// Observers receives decision telemetry from every core component.
type Observers interface {
	pathcontext.Observer
	recommend.Observer
	flags.Observer
	recovery.Observer
}

type Option func(*options)

type options struct {
	observers Observers
}

func WithObservers(observers *metrics.DecisionMetrics) Option {
	return func(o *options) {
		if observers != nil {
			o.observers = observers
		}
	}
}

// Core holds the stateless decision services. It needs no infrastructure
// and backs the MCP server and the CLI.
type Core struct {
	Config config.Config

	Resolver    *pathcontext.Resolver
	Recommender *recommend.Engine
	Flags       *flags.Evaluator
	Recovery    *recovery.Supervisor
}

type App struct {
	*Core

	Assets    *postgres.AssetRepository
	Orgs      *postgres.OrganizationRepository
	Bus       *nats.Bus
	Storage   ports.StorageBackend
	Presigner ports.UploadPresigner
	Offline   *sqlite.Queue
	Exporter  ports.AnalyticsExporter

	// Dependencies guards the NATS and Redis calls.
	Dependencies *resilience.Executor

	UploadUC    *usecase.UploadUseCase
	MigrationUC *usecase.MigrationUseCase
	SyncUC      *usecase.OfflineSyncUseCase

	closeFn func()
}

type coreDeps struct {
	tenants ports.TenantProvider
	toggles ports.ToggleRecorder
	locks   ports.WriteLockQueue
}

// NewCore builds the decision services with an optional flag catalog file
// and no tenant lookups.
func NewCore(cfg config.Config, opts ...Option) (*Core, error) {
	return newCore(cfg, coreDeps{}, opts...)
}

func newCore(cfg config.Config, deps coreDeps, opts ...Option) (*Core, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	catalog := flags.DefaultCatalog()
	if cfg.FlagCatalogPath != "" {
		loaded, err := flagcatalog.Load(cfg.FlagCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load flag catalog: %w", err)
		}
		catalog = loaded
	}

	resolverOpts := []pathcontext.Option{pathcontext.WithNaming(pathcontext.NamingConvention(cfg.ResolverNaming))}
	engineOpts := []recommend.Option{}
	flagOpts := []flags.Option{flags.WithEnvironment(domain.Environment(cfg.AppEnv))}
	recoveryOpts := []recovery.Option{}
	if o.observers != nil {
		resolverOpts = append(resolverOpts, pathcontext.WithObserver(o.observers))
		engineOpts = append(engineOpts, recommend.WithObserver(o.observers))
		flagOpts = append(flagOpts, flags.WithObserver(o.observers))
		recoveryOpts = append(recoveryOpts, recovery.WithObserver(o.observers))
	}
	if deps.tenants != nil {
		flagOpts = append(flagOpts, flags.WithTenantProvider(deps.tenants))
	}
	if deps.toggles != nil {
		flagOpts = append(flagOpts, flags.WithToggleRecorder(deps.toggles))
	}
	if deps.locks != nil {
		recoveryOpts = append(recoveryOpts, recovery.WithWriteLockQueue(deps.locks))
	}

	evaluator := flags.NewEvaluator(catalog, flagOpts...)
	recoveryOpts = append(recoveryOpts, recovery.WithFlags(evaluator))

	return &Core{
		Config:      cfg,
		Resolver:    pathcontext.NewResolver(resolverOpts...),
		Recommender: recommend.NewEngine(engineOpts...),
		Flags:       evaluator,
		Recovery:    recovery.NewSupervisor(recoveryConfig(cfg), recoveryOpts...),
	}, nil
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, error) {
		closeAll()
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	closers = append(closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return fail(fmt.Errorf("ensure schema: %w", err))
	}
	assets := postgres.NewAssetRepository(db)
	orgs := postgres.NewOrganizationRepository(db)

	storage, presigner, err := newStorage(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("init object storage: %w", err))
	}

	executor := resilience.NewExecutor(executorConfig(cfg))
	bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubjectPrefix, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		return fail(fmt.Errorf("init message bus: %w", err))
	}
	closers = append(closers, bus.Close)

	deps := coreDeps{tenants: orgs, toggles: bus}
	if cfg.RedisURL != "" {
		locks, err := redis.NewWriteLockQueue(ctx, cfg.RedisURL, redis.Options{ResilienceExecutor: executor})
		if err != nil {
			return fail(fmt.Errorf("init write lock queue: %w", err))
		}
		closers = append(closers, func() { _ = locks.Close() })
		deps.locks = locks
	}

	core, err := newCore(cfg, deps, opts...)
	if err != nil {
		return fail(err)
	}

	uploadOpts := []usecase.UploadOption{
		usecase.WithPayloadInspector(inspect.New()),
		usecase.WithEventPublisher(bus),
		usecase.WithMaxUploadBytes(cfg.MaxUploadBytes),
	}
	var (
		offline *sqlite.Queue
		syncUC  *usecase.OfflineSyncUseCase
	)
	if cfg.OfflineQueuePath != "" {
		offline, err = sqlite.Open(cfg.OfflineQueuePath)
		if err != nil {
			return fail(fmt.Errorf("open offline queue: %w", err))
		}
		closers = append(closers, func() { _ = offline.Close() })
		uploadOpts = append(uploadOpts, usecase.WithOfflineQueue(offline))
		syncUC = usecase.NewOfflineSyncUseCase(offline, storage, assets, core.Recovery, bus)
	}

	return &App{
		Core:      core,
		Assets:    assets,
		Orgs:      orgs,
		Bus:       bus,
		Storage:   storage,
		Presigner: presigner,
		Offline:   offline,
		Exporter:  report.NewXLSXExporter(),

		Dependencies: executor,

		UploadUC:    usecase.NewUploadUseCase(core.Resolver, core.Flags, core.Recovery, storage, assets, uploadOpts...),
		MigrationUC: usecase.NewMigrationUseCase(core.Resolver, core.Flags, core.Recovery, storage, assets),
		SyncUC:      syncUC,

		closeFn: closeAll,
	}, nil
}

// WatchFlagCatalog hot-reloads the catalog file until ctx is done. It is a
// no-op without a configured catalog path.
func (c *Core) WatchFlagCatalog(ctx context.Context) {
	path := c.Config.FlagCatalogPath
	if path == "" {
		return
	}
	go func() {
		err := flagcatalog.Watch(ctx, path, catalogDebounce, func(catalog *flags.Catalog) {
			c.Flags.SetCatalog(catalog)
			c.Flags.InvalidateAll()
		})
		if err != nil {
			slog.Error("flag_catalog_watch_failed", "path", path, "error", err)
		}
	}()
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newStorage(ctx context.Context, cfg config.Config) (ports.StorageBackend, ports.UploadPresigner, error) {
	switch cfg.StorageBackend {
	case "s3":
		store, err := s3.New(ctx, s3.Config{
			Bucket:   cfg.S3Bucket,
			Regions:  cfg.S3Regions,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "localfs", "":
		store, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func executorConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:         time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond,
		RetryMultiplier:         cfg.RetryMultiplier,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      nonNegativeUint32(cfg.BreakerMinRequests),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: nonNegativeUint32(cfg.BreakerHalfOpenMaxCalls),
		OnBreakerStateChange: func(operation, from, to string) {
			slog.Warn("dependency_breaker_state_changed", "operation", operation, "from", from, "to", to)
		},
	}
}

func recoveryConfig(cfg config.Config) recovery.Config {
	rc := recovery.DefaultConfig()
	if cfg.RecoveryRetryMaxAttempts > 0 {
		rc.Retry.MaxAttempts = cfg.RecoveryRetryMaxAttempts
	}
	if cfg.RecoveryRetryInitial > 0 {
		rc.Retry.InitialDelay = cfg.RecoveryRetryInitial
	}
	if cfg.RecoveryRetryMax > 0 {
		rc.Retry.MaxDelay = cfg.RecoveryRetryMax
	}
	if cfg.RecoveryBreakerThreshold > 0 {
		rc.Breaker.FailureThreshold = cfg.RecoveryBreakerThreshold
	}
	if cfg.RecoveryBreakerCooldown > 0 {
		rc.Breaker.CoolDown = cfg.RecoveryBreakerCooldown
	}
	rc.Breaker.OnStateChange = func(name string, from, to resilience.BreakerState) {
		slog.Warn("upload_breaker_state_changed", "resource", name, "from", string(from), "to", string(to))
	}
	rc.FallbackEndpoints = cfg.DNSFallbackEndpoints
	rc.Regions = cfg.S3Regions
	if cfg.StatusPageURL != "" {
		rc.StatusPageURL = cfg.StatusPageURL
	}
	if cfg.UpgradeURL != "" {
		rc.UpgradeURL = cfg.UpgradeURL
	}
	if cfg.BatchConcurrency > 0 {
		rc.BatchConcurrency = cfg.BatchConcurrency
	}
	if cfg.AnalyticsLimit > 0 {
		rc.AnalyticsLimit = cfg.AnalyticsLimit
	}
	return rc
}

func nonNegativeUint32(v int) uint32 {
	if v <= 0 {
		return 0
	}
	return uint32(v)
}

