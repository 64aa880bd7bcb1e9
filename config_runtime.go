package websso

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jonboulle/clockwork"
	"github.com/porthorian/websso/pkg/metadata"
	"github.com/porthorian/websso/pkg/storage"
	memorystore "github.com/porthorian/websso/pkg/storage/memory"
	mongostore "github.com/porthorian/websso/pkg/storage/mongo"
	postgresstore "github.com/porthorian/websso/pkg/storage/postgres"
	redisstore "github.com/porthorian/websso/pkg/storage/redis"
	"github.com/porthorian/websso/pkg/trust/xmldsig"
)

type StorageBackend string

const (
	StorageBackendNone     StorageBackend = "none"
	StorageBackendMemory   StorageBackend = "memory"
	StorageBackendPostgres StorageBackend = "postgres"
	StorageBackendRedis    StorageBackend = "redis"
	StorageBackendMongo    StorageBackend = "mongo"
)

type RuntimeConfig struct {
	Storage  StorageConfig
	Metadata MetadataConfig
}

type StorageConfig struct {
	Backend  StorageBackend
	Policy   storage.RetentionPolicy
	Memory   MemoryStorageConfig
	Postgres PostgresConfig
	Redis    RedisStorageConfig
	Mongo    MongoStorageConfig
}

type MemoryStorageConfig struct{}

type PostgresConfig struct {
	DriverName      string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	OpenDB          func(driverName string, dsn string) (*sql.DB, error)
}

type RedisStorageConfig struct {
	Address     string
	Username    string
	Password    string
	Database    int
	Namespace   string
	DialTimeout time.Duration
	PingTimeout time.Duration
}

type MongoStorageConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// MetadataConfig feeds identity-provider descriptors into the provider
// registry at initialization. Descriptors already in hand go in ProviderXML;
// ProviderURLs are fetched over HTTPS.
type MetadataConfig struct {
	ProviderXML  [][]byte
	ProviderURLs []string
	FetchTimeout time.Duration
}

func (c Config) initialize(ctx context.Context) (func() error, Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	config := c
	config.Logger = resolveLogger(config.Logger)
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	closeStorage, config, err := initializeStorage(ctx, config)
	if err != nil {
		return nil, Config{}, err
	}

	config, err = initializeMetadata(ctx, config)
	if err != nil {
		_ = closeStorage()
		return nil, Config{}, err
	}

	config, err = initializeVerifier(config)
	if err != nil {
		_ = closeStorage()
		return nil, Config{}, err
	}

	return joinClosers(closeStorage), config, nil
}

func initializeStorage(ctx context.Context, config Config) (func() error, Config, error) {
	backend := config.Runtime.Storage.Backend
	if backend == "" {
		backend = StorageBackendNone
	}

	switch backend {
	case StorageBackendNone:
		return noopCloser, config, nil
	case StorageBackendMemory:
		return initializeMemoryStorage(config)
	case StorageBackendPostgres:
		return initializePostgres(ctx, config)
	case StorageBackendRedis:
		return initializeRedisStorage(ctx, config)
	case StorageBackendMongo:
		return initializeMongoStorage(ctx, config)
	default:
		return nil, Config{}, fmt.Errorf("websso config: unsupported runtime.storage.backend %q", backend)
	}
}

func initializeMemoryStorage(config Config) (func() error, Config, error) {
	adapter := memorystore.NewAdapter(memorystore.Config{
		Policy: config.Runtime.Storage.Policy,
		Clock:  config.Clock,
	})

	if config.RequestStore == nil {
		config.RequestStore = adapter
	}

	config.Logger.V(1).Info("initialized memory storage backend")
	return noopCloser, config, nil
}

func initializePostgres(ctx context.Context, config Config) (func() error, Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	pgConfig := config.Runtime.Storage.Postgres
	if pgConfig.DSN == "" {
		return nil, Config{}, fmt.Errorf("websso config: runtime.storage.postgres.dsn is required")
	}

	if pgConfig.DriverName == "" {
		pgConfig.DriverName = "pgx"
	}
	if pgConfig.PingTimeout <= 0 {
		pgConfig.PingTimeout = 5 * time.Second
	}
	if pgConfig.OpenDB == nil {
		pgConfig.OpenDB = sql.Open
	}

	db, err := pgConfig.OpenDB(pgConfig.DriverName, pgConfig.DSN)
	if err != nil {
		return nil, Config{}, fmt.Errorf("websso config: failed to open postgres database: %w", err)
	}

	if pgConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pgConfig.MaxOpenConns)
	}
	if pgConfig.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pgConfig.MaxIdleConns)
	}
	if pgConfig.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pgConfig.ConnMaxLifetime)
	}
	if pgConfig.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pgConfig.ConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pgConfig.PingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, Config{}, fmt.Errorf("websso config: failed to ping postgres database: %w", err)
	}

	adapter, err := postgresstore.NewAdapter(db, postgresstore.Config{
		Policy: config.Runtime.Storage.Policy,
		Clock:  config.Clock,
	})
	if err != nil {
		_ = db.Close()
		return nil, Config{}, fmt.Errorf("websso config: failed to initialize postgres adapter: %w", err)
	}

	if config.RequestStore == nil {
		config.RequestStore = adapter
	}

	config.Runtime.Storage.Postgres = pgConfig
	config.Logger.V(1).Info("initialized postgres storage backend", "driver", pgConfig.DriverName, "max_open_conns", pgConfig.MaxOpenConns, "max_idle_conns", pgConfig.MaxIdleConns)
	return joinClosers(func() error { return db.Close() }, adapter.Close), config, nil
}

func initializeRedisStorage(ctx context.Context, config Config) (func() error, Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	redisConfig := config.Runtime.Storage.Redis
	if redisConfig.Address == "" {
		return nil, Config{}, fmt.Errorf("websso config: runtime.storage.redis.address is required")
	}
	if redisConfig.DialTimeout <= 0 {
		redisConfig.DialTimeout = 5 * time.Second
	}
	if redisConfig.PingTimeout <= 0 {
		redisConfig.PingTimeout = 5 * time.Second
	}

	adapter := redisstore.NewAdapter(redisstore.Config{
		Address:     redisConfig.Address,
		Username:    redisConfig.Username,
		Password:    redisConfig.Password,
		Database:    redisConfig.Database,
		Namespace:   redisConfig.Namespace,
		DialTimeout: redisConfig.DialTimeout,
		Policy:      config.Runtime.Storage.Policy,
		Clock:       config.Clock,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConfig.PingTimeout)
	defer cancel()

	if err := adapter.Ping(pingCtx); err != nil {
		_ = adapter.Close()
		return nil, Config{}, fmt.Errorf("websso config: failed to ping redis: %w", err)
	}

	if config.RequestStore == nil {
		config.RequestStore = adapter
	}

	config.Runtime.Storage.Redis = redisConfig
	config.Logger.V(1).Info("initialized redis storage backend", "address", redisConfig.Address, "database", redisConfig.Database, "namespace", redisConfig.Namespace)
	return adapter.Close, config, nil
}

func initializeMongoStorage(ctx context.Context, config Config) (func() error, Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	mongoConfig := config.Runtime.Storage.Mongo
	if mongoConfig.URI == "" {
		return nil, Config{}, fmt.Errorf("websso config: runtime.storage.mongo.uri is required")
	}

	adapter, err := mongostore.NewAdapter(ctx, mongostore.Config{
		URI:            mongoConfig.URI,
		Database:       mongoConfig.Database,
		Collection:     mongoConfig.Collection,
		ConnectTimeout: mongoConfig.ConnectTimeout,
		Policy:         config.Runtime.Storage.Policy,
		Clock:          config.Clock,
	})
	if err != nil {
		return nil, Config{}, fmt.Errorf("websso config: failed to initialize mongo adapter: %w", err)
	}

	if config.RequestStore == nil {
		config.RequestStore = adapter
	}

	closeResource := func() error {
		return adapter.Close(context.Background())
	}

	config.Logger.V(1).Info("initialized mongo storage backend", "database", mongoConfig.Database, "collection", mongoConfig.Collection)
	return closeResource, config, nil
}

func initializeMetadata(ctx context.Context, config Config) (Config, error) {
	metadataConfig := config.Runtime.Metadata
	if len(metadataConfig.ProviderXML) == 0 && len(metadataConfig.ProviderURLs) == 0 {
		return config, nil
	}

	if config.Providers == nil {
		registry, err := metadata.NewRegistry()
		if err != nil {
			return Config{}, err
		}
		config.Providers = registry
	}

	for _, raw := range metadataConfig.ProviderXML {
		provider, err := metadata.ParseIdentityProvider(raw)
		if err != nil {
			return Config{}, fmt.Errorf("websso config: failed to parse provider descriptor: %w", err)
		}
		if err := config.Providers.Register(provider); err != nil {
			return Config{}, fmt.Errorf("websso config: failed to register provider %q: %w", provider.EntityID(), err)
		}
		config.Logger.V(1).Info("registered identity provider", "entity_id", provider.EntityID())
	}

	for _, metadataURL := range metadataConfig.ProviderURLs {
		provider, err := fetchProvider(ctx, metadataURL, metadataConfig.FetchTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("websso config: failed to fetch provider descriptor from %s: %w", metadataURL, err)
		}
		if err := config.Providers.Register(provider); err != nil {
			return Config{}, fmt.Errorf("websso config: failed to register provider %q: %w", provider.EntityID(), err)
		}
		config.Logger.V(1).Info("registered identity provider", "entity_id", provider.EntityID(), "source", metadataURL)
	}

	return config, nil
}

func fetchProvider(ctx context.Context, metadataURL string, timeout time.Duration) (*metadata.IdentityProvider, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return metadata.FetchIdentityProvider(ctx, metadataURL)
}

// initializeVerifier wires the registry-backed signature verifier when the
// caller supplied provider metadata but no verifier of their own.
func initializeVerifier(config Config) (Config, error) {
	if config.TrustVerifier != nil || config.Providers == nil {
		return config, nil
	}

	verifier, err := xmldsig.NewVerifier(xmldsig.Config{Source: config.Providers})
	if err != nil {
		return Config{}, fmt.Errorf("websso config: failed to initialize trust verifier: %w", err)
	}

	config.TrustVerifier = verifier
	config.Logger.V(1).Info("initialized xmldsig trust verifier")
	return config, nil
}

func joinClosers(closers ...func() error) func() error {
	return func() error {
		var errs []error

		for i := len(closers) - 1; i >= 0; i-- {
			if closers[i] == nil {
				continue
			}
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}

		return stderrors.Join(errs...)
	}
}

func noopCloser() error {
	return nil
}
