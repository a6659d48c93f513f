// ABOUTME: Opens the configured storage backend for the gateway
// ABOUTME: Redis only holds approvals; the interaction journal and decisions then live in memory

package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/config"
	"github.com/2389/wallet-gateway/internal/store"
)

// storage is the set of stores one backend provides.
type storage struct {
	kv        store.KV
	journal   store.InteractionStore
	decisions store.DecisionStore
}

type pinger interface {
	Ping(ctx context.Context) error
}

// openStorage creates the stores for cfg.Driver.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*storage, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return &storage{kv: s, journal: s, decisions: s}, nil

	case config.DriverMemory:
		s := store.NewMemoryStore()
		logger.Warn("using in-memory storage; approvals are lost on restart")
		return &storage{kv: s, journal: s, decisions: s}, nil

	case config.DriverPostgres:
		s, err := store.OpenPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return &storage{kv: s, journal: s, decisions: s}, nil

	case config.DriverRedis:
		s := store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Namespace)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		mem := store.NewMemoryStore()
		logger.Info("redis holds approvals; interaction journal and decisions are kept in memory",
			"addr", cfg.Redis.Addr,
		)
		return &storage{kv: s, journal: mem, decisions: mem}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// ping reports whether the approval store is reachable. Stores without a
// health check are assumed up.
func (s *storage) ping(ctx context.Context) error {
	if p, ok := s.kv.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// close releases the backend. The in-memory journal used beside Redis
// holds nothing to release.
func (s *storage) close() error {
	return s.kv.Close()
}

// OpenCapabilityStore opens the configured approval store without starting
// a gateway, for offline administration. The returned func closes it.
func OpenCapabilityStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*capability.Store, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}
	caps := capability.NewStore(st.kv, capability.Options{
		DefaultMode: capability.Mode(cfg.Authorization.DefaultMode),
		Logger:      logger,
	})
	return caps, st.close, nil
}
