package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/cardvault/common/config"
	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/common/messaging"
	natsclient "github.com/telhawk-systems/cardvault/common/messaging/nats"
	"github.com/telhawk-systems/cardvault/vault/internal/audit"
	"github.com/telhawk-systems/cardvault/vault/internal/authz"
	"github.com/telhawk-systems/cardvault/vault/internal/events"
	"github.com/telhawk-systems/cardvault/vault/internal/kvstore"
	"github.com/telhawk-systems/cardvault/vault/internal/rollback"
	"github.com/telhawk-systems/cardvault/vault/internal/secure"
)

// App is the wired vault: one instance of every component, built from config.
type App struct {
	Config  *config.Config
	Logger  *logging.Logger
	Store   kvstore.Store
	Broker  messaging.Client
	Bus     *events.Bus
	Audit   *audit.Logger
	Gate    *authz.Gate
	Engine  *secure.Engine
	Machine *rollback.Machine

	closers []func()
}

// AppOptions carries process-level collaborators.
type AppOptions struct {
	Restarter rollback.Restarter
	// Broker overrides the configured message broker.
	Broker messaging.Client
	// Store overrides the configured storage backend.
	Store kvstore.Store
}

// NewApp connects the storage backend and the broker, then builds the
// security components on top of them.
func NewApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts AppOptions) (*App, error) {
	app := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	var err error
	app.Store = opts.Store
	if app.Store == nil {
		if app.Store, err = app.openStore(ctx); err != nil {
			return nil, err
		}
	}

	app.Broker = opts.Broker
	if app.Broker == nil {
		if app.Broker, err = app.openBroker(); err != nil {
			return nil, err
		}
	}
	app.Bus = events.NewBus(app.Broker, logger.Logger)

	sinks, err := app.auditSinks(ctx)
	if err != nil {
		return nil, err
	}
	app.Audit = audit.NewLogger(cfg.Security.AuditSecret, sinks, audit.WithLogger(logger.Logger))

	app.Gate = authz.NewGate(app.Audit,
		authz.WithSessionTTL(cfg.Security.SessionTTL),
		authz.WithLogger(logger.Logger))

	key, err := encryptionKey(cfg.Security)
	if err != nil {
		return nil, err
	}
	app.Engine, err = secure.New(app.Store, app.Gate, key,
		secure.WithAudit(app.Audit),
		secure.WithLogger(logger.Logger))
	if err != nil {
		return nil, err
	}
	if err := app.Engine.Features().Load(ctx); err != nil {
		return nil, err
	}

	app.Machine = rollback.New(app.Store, app.Engine.Features(),
		rollback.WithNotifier(events.MultiNotifier{
			events.NewLogNotifier(logger.Logger),
			events.NewBusNotifier(app.Broker),
		}),
		rollback.WithAudit(app.Audit),
		rollback.WithRestarter(opts.Restarter),
		rollback.WithRestartDelay(cfg.Security.EmergencyRestartDelay),
		rollback.WithLogger(logger.Logger))
	app.closers = append(app.closers, app.Machine.Close)
	if err := app.Machine.Load(ctx); err != nil {
		return nil, err
	}

	ok = true
	return app, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) (kvstore.Store, error) {
	sc := a.Config.Storage
	log := a.Logger.With(logging.Backend(sc.Backend))

	switch sc.Backend {
	case config.BackendRedis:
		client, err := kvstore.DialRedis(ctx, sc.Redis.URL, sc.Redis.PoolSize)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		log.Info("Connected to Redis")
		return kvstore.NewRedisStore(client, sc.Redis.KeyPrefix), nil

	case config.BackendPostgres:
		dsn := sc.Postgres.DSN()
		log.Info("Connecting to PostgreSQL",
			slog.String("host", sc.Postgres.Host),
			slog.Int("port", sc.Postgres.Port),
			slog.String("database", sc.Postgres.Database))
		version, err := kvstore.Migrate(dsn, sc.Postgres.MigrationsPath)
		if err != nil {
			return nil, err
		}
		log.Info("Database migration complete", slog.Uint64("version", uint64(version)))
		store, err := kvstore.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil

	default:
		log.Warn("Using in-memory store (development only)")
		return kvstore.NewMemoryStore(), nil
	}
}

func (a *App) openBroker() (messaging.Client, error) {
	nc := a.Config.NATS
	if !nc.Enabled {
		return messaging.NewLocalClient(), nil
	}

	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = nc.URL
	natsCfg.Logger = a.Logger.Logger
	if nc.MaxReconnects != 0 {
		natsCfg.MaxReconnects = nc.MaxReconnects
	}
	if nc.ReconnectWait > 0 {
		natsCfg.ReconnectWait = nc.ReconnectWait
	}
	client, err := natsclient.NewClient(natsCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = client.Drain() })
	a.Logger.Info("Connected to NATS", slog.String("url", nc.URL))
	return client, nil
}

func (a *App) auditSinks(ctx context.Context) ([]audit.Sink, error) {
	sinks := []audit.Sink{audit.NewSlogSink(a.Logger.Logger)}
	if a.Config.NATS.Enabled {
		publisher, err := a.auditPublisher(ctx)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewNATSSink(publisher))
	}
	if osc := a.Config.OpenSearch; osc.Enabled {
		client, err := audit.DialOpenSearch(osc)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewOpenSearchSink(client, osc.AuditIndex))
		a.Logger.Info("Forwarding audit entries to OpenSearch", slog.String("index", osc.AuditIndex))
	}
	return sinks, nil
}

// auditPublisher returns a JetStream publisher when an audit stream is
// configured, otherwise the plain broker.
func (a *App) auditPublisher(ctx context.Context) (messaging.Publisher, error) {
	nc := a.Config.NATS
	client, ok := a.Broker.(*natsclient.Client)
	if nc.AuditStream == "" || !ok {
		return a.Broker, nil
	}

	js, err := client.JetStream()
	if err != nil {
		return nil, err
	}
	streamCfg := natsclient.DefaultStreamConfig(nc.AuditStream, []string{messaging.SubjectAuditEntries})
	if nc.AuditRetention > 0 {
		streamCfg.MaxAge = nc.AuditRetention
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := js.EnsureStream(ctx, streamCfg); err != nil {
		return nil, err
	}
	a.Logger.Info("Persisting audit entries to JetStream", slog.String("stream", nc.AuditStream))
	return js, nil
}

func encryptionKey(sc config.SecurityConfig) ([]byte, error) {
	if sc.EncryptionKey != "" {
		key, err := secure.ParseKey(sc.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		return key, nil
	}
	return secure.DeriveKey(sc.Passphrase, sc.KeySalt), nil
}
