package daemon

import (
	"context"

	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/config"
	"github.com/matheus3301/rentchat/internal/docstore"
	"github.com/matheus3301/rentchat/internal/files"
	"github.com/matheus3301/rentchat/internal/lock"
	"github.com/matheus3301/rentchat/internal/logging"
	"github.com/matheus3301/rentchat/internal/session"
	"github.com/matheus3301/rentchat/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Binary names the daemon in log paths.
const Binary = "rentchatd"

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideDocuments,
			provideResolver,
			provideDocumentsService,
			provideRateLimiter,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	return session.LoadConfig()
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName, Binary), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// provideStore depends on the lock so the database is never opened by two daemons.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DocumentsDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideDocuments(db *store.DB, b *bus.Bus, logger *zap.Logger) *docstore.Service {
	return docstore.New(db, b, logger)
}

func provideResolver(p Params, cfg *config.Config, db *store.DB, logger *zap.Logger) (*files.Resolver, error) {
	signer, err := files.NewSigner(context.Background(), cfg.Storage, session.FilesDir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("file storage ready", zap.String("backend", cfg.Storage.Backend))
	return files.NewResolver(db, signer, cfg.Storage.URLTTL.Duration), nil
}

func provideDocumentsService(p Params, cfg *config.Config, svc *docstore.Service, resolver *files.Resolver, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.DocumentsService {
	return api.NewDocumentsService(api.DocumentsDeps{
		Documents: svc,
		Realtime:  svc,
		Files:     resolver,
		Counter:   db,
		Bus:       b,
		Collections: []string{
			cfg.Collections.Conversations,
			cfg.Collections.Messages,
			cfg.Collections.Profiles,
		},
		SessionName: p.SessionName,
		Logger:      logger,
	})
}

func provideRateLimiter(cfg *config.Config, logger *zap.Logger) *api.RateLimiter {
	return api.NewRateLimiter(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
