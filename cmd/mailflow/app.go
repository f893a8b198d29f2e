package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	mailflow "github.com/kdevda/go-mailflow"
	"github.com/kdevda/go-mailflow/adapters/gologger"
	mailprometheus "github.com/kdevda/go-mailflow/adapters/prometheus"
	"github.com/kdevda/go-mailflow/core"
	mailflowmigrations "github.com/kdevda/go-mailflow/migrations"
	"github.com/kdevda/go-mailflow/security"
	sqlstore "github.com/kdevda/go-mailflow/store/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type app struct {
	settings    settings
	logger      *glog.BaseLogger
	client      *persistence.Client
	factory     *sqlstore.RepositoryFactory
	configStore mailflow.ConfigEntryReadWriter
	secrets     core.SecretProvider
	metrics     *mailprometheus.Recorder
	runtime     *mailflow.Runtime
}

type appOptions struct {
	migrate bool
}

func newLogger(s settings, out io.Writer) *glog.BaseLogger {
	return glog.NewLogger(
		gologger.FormatOption(s.LogFormat),
		glog.WithLevel(s.LogLevel),
		glog.WithWriter(out),
		glog.WithFatalBehavior(glog.FatalBehaviorLogOnly),
	)
}

// openApp connects storage and builds the runtime. Callers own Close.
func openApp(ctx context.Context, s settings, logOut io.Writer, opts appOptions) (*app, error) {
	a := &app{settings: s, logger: newLogger(s, logOut)}

	client, err := openPersistence(ctx, s)
	if err != nil {
		return nil, err
	}
	a.client = client
	if opts.migrate {
		if err := client.Migrate(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("mailflow: migrate: %w", err)
		}
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.factory = factory

	configStore, err := buildConfigStore(factory, s)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.configStore = configStore

	secrets, err := buildSecrets(s, a.logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.secrets = secrets
	a.metrics = mailprometheus.NewRecorder(nil, mailprometheus.WithErrorHandler(func(name string, err error) {
		a.logger.Warn("metrics collector rejected", "metric", name, "error", err)
	}))

	envConfig := core.NewEnvConfigProvider(envPrefix)
	envConfig.Logger = a.logger.GetLogger("config")
	serviceOpts := []core.Option{
		core.WithLoggerProvider(a.logger),
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(a.metrics),
		core.WithConfigProvider(envConfig),
		core.WithConfigStore(configStore),
		core.WithMessageStore(factory.MessageStore()),
	}
	facadeOpts := []mailflow.FacadeOption{mailflow.WithFacadeConfigStore(configStore)}
	if secrets != nil {
		serviceOpts = append(serviceOpts, core.WithSecretProvider(secrets))
		facadeOpts = append(facadeOpts, mailflow.WithFacadeSecretProvider(secrets))
	}

	runtime, err := mailflow.NewRuntime(
		mailflow.Config{},
		mailflow.WithServiceOptions(serviceOpts...),
		mailflow.WithFacadeOptions(facadeOpts...),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.runtime = runtime
	return a, nil
}

func (a *app) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

// Ping reports database reachability for the health endpoint.
func (a *app) Ping(ctx context.Context) error {
	if a == nil || a.factory == nil || a.factory.DB() == nil {
		return fmt.Errorf("mailflow: database is not configured")
	}
	return a.factory.DB().PingContext(ctx)
}

func openPersistence(ctx context.Context, s settings) (*persistence.Client, error) {
	migrationDialect, err := mailflowmigrations.DialectForDriver(s.DBDriver)
	if err != nil {
		return nil, err
	}
	var dialect schema.Dialect = sqlitedialect.New()
	if migrationDialect == mailflowmigrations.DialectPostgres {
		dialect = pgdialect.New()
	}

	sqlDB, err := sql.Open(s.DBDriver, s.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("mailflow: open database: %w", err)
	}
	if migrationDialect == mailflowmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	cfg := persistenceConfig{driver: s.DBDriver, dsn: s.DBDSN, debug: s.DBDebug}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("mailflow: persistence client: %w", err)
	}

	_, err = mailflowmigrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, mailflowmigrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func buildConfigStore(factory *sqlstore.RepositoryFactory, s settings) (mailflow.ConfigEntryReadWriter, error) {
	base := factory.ConfigEntryStore()
	if s.ConfigCacheTTL <= 0 {
		return base, nil
	}
	cfg := repositorycache.DefaultConfig()
	cfg.TTL = s.ConfigCacheTTL
	cacheService, err := repositorycache.NewCacheService(cfg)
	if err != nil {
		return nil, fmt.Errorf("mailflow: config cache: %w", err)
	}
	return sqlstore.NewCachedConfigEntryStore(base, cacheService)
}

// buildSecrets returns nil when no app key is set; encrypted config writes
// then fail with a configuration error.
func buildSecrets(s settings, logger core.Logger) (core.SecretProvider, error) {
	if s.AppKey == "" {
		if s.PreviousAppKeys != "" {
			return nil, fmt.Errorf("mailflow: %sAPP_KEY_PREVIOUS requires %sAPP_KEY", envPrefix, envPrefix)
		}
		return nil, nil
	}
	return security.NewKeyringFromAppKeys(s.AppKey, s.PreviousAppKeys,
		security.WithKeyringDiagnostics(func(event security.KeyringDiagnostic) {
			fields := []any{
				"operation", event.Operation,
				"outcome", event.Outcome,
				"key_id", event.KeyID,
				"version", event.Version,
			}
			if event.Error != "" {
				logger.Warn("keyring operation", append(fields, "error", event.Error)...)
				return
			}
			logger.Debug("keyring operation", fields...)
		}),
	)
}
