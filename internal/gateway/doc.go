// Package gateway orchestrates the wallet-gateway server components.
//
// # Overview
//
// The gateway owns every long-lived component: the storage backend, the
// capability store, the authorization engine, the interaction tracker, the
// wallet and its operation pipeline, the gRPC service and the HTTP health
// server. New wires them from a config.Config and a wallet.Executor; Run
// serves until its context is canceled and then shuts everything down.
//
// # Storage
//
// storage.driver selects the backend:
//
//   - sqlite: approvals, interaction journal and decision audit in one file
//   - postgres: the same three tables on a Postgres server
//   - redis: approvals in Redis; journal and decisions stay in memory
//   - memory: everything in memory, for development
//
// # Endpoints
//
//	gRPC  wallet.v1.WalletGateway  (JWT bearer token required)
//	GET   /health                  liveness
//	GET   /health/ready            200 when the approval store answers
//
// # Shutdown
//
// Shutdown closes the event broadcasters first so watch streams end, then
// stops the gRPC server gracefully (forcing it after the deadline), closes
// the store and flushes telemetry.
package gateway
