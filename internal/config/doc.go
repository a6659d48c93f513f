// Package config handles configuration loading for wallet-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WALLET_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/wallet-gateway/config.yaml
//  3. ~/.config/wallet-gateway/config.yaml
//
// Files ending in .toml are parsed as TOML; everything else as YAML. Any
// field left out keeps the value from Default.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${WALLET_GATEWAY_JWT_SECRET}"
//
// Unset variables expand to the empty string. WALLET_GATEWAY_DB_PATH, when
// set, replaces storage.path after parsing.
//
// # Example
//
//	server:
//	  grpc_addr: "127.0.0.1:50061"
//	  http_addr: "127.0.0.1:8061"   # health checks only
//
//	storage:
//	  driver: sqlite                 # sqlite | memory | redis | postgres
//	  path: "~/.local/share/wallet-gateway/wallet.db"
//	  redis:
//	    addr: "localhost:6379"
//	    db: 0
//	    namespace: "wallet:"
//	  postgres:
//	    dsn: "postgres://wallet@localhost/wallet?sslmode=disable"
//
//	authorization:
//	  request_timeout: "5m"
//	  resolved_ttl: "10m"
//	  max_pending: 64
//	  default_mode: permissive       # permissive | strict
//
//	auth:
//	  jwt_secret: "${WALLET_GATEWAY_JWT_SECRET}"   # at least 32 bytes
//	  ui_subject: "wallet-ui"
//
//	executor:
//	  addr: "127.0.0.1:50062"        # execution node
//	  insecure: true
//
//	logging:
//	  level: info                    # debug | info | warn | error
//	  format: text                   # text | json
//
//	telemetry:
//	  enabled: false
//	  service_name: wallet-gateway
//	  otlp_endpoint: "localhost:4317"
//	  insecure: true
//
// Durations use time.ParseDuration syntax.
package config
