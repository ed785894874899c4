// Package app groups the layers of the password registry.
//
// # Package Structure
//
//	internal/app/
//	├── domain/account/      # Account identifier rules
//	├── services/registry/   # Registry engine: state, layout codec, owner guard, upgrade
//	├── storage/             # KV interface and backends
//	│   ├── memory/          # In-process map for tests and dev runs
//	│   ├── sqlstore/        # sqlx over SQLite (modernc) or PostgreSQL (lib/pq)
//	│   └── redisstore/      # go-redis
//	├── host/                # Serializes mutations, construct-once, metrics
//	├── httpapi/             # gorilla/mux routes over the host
//	├── metrics/             # Prometheus collectors
//	└── runtime/             # Config -> store -> host -> HTTP server
//
// # Dependency Direction
//
//	cmd/registry/
//	      │
//	      ▼
//	runtime ──► httpapi ──► host ──► services/registry ──► storage
//	                                        │
//	                                        └──► domain/account
//
// The registry engine holds no locks and does no I/O beyond the KV
// interface. The host is the only place that serializes writers.
package app
