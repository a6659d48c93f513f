// Package store provides persistence for the wallet gateway.
//
// # Architecture
//
// The package is interface-driven:
//
//   - KV: flat key/value storage used by the capability store
//   - InteractionStore: append-only interaction snapshots
//   - DecisionStore: authorization decision audit trail
//
// Backends:
//
//   - MemoryStore: all three interfaces, for tests and ephemeral gateways
//   - SQLiteStore: all three interfaces, the default driver
//   - PostgresStore: all three interfaces, for shared deployments
//   - RedisStore: KV only; journal and decisions fall back to memory
//
// # SQLite Configuration
//
// The SQLite store uses WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Production: /var/lib/wallet-gateway/wallet.db
//   - Development: ~/.local/share/wallet-gateway/wallet.db
//
// # Consistency
//
// No backend offers transactions across keys. Callers performing
// read-then-write sequences on the same app can race; the last write wins.
//
// # Error Handling
//
//   - ErrNotFound: requested key or interaction does not exist
//
// All methods accept context.Context for cancellation support.
package store
