/*
Package flog provides structured logging for Formation using zerolog.

The flog package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

Formation's logging system provides structured JSON logging with minimal
overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via flog.Init()              │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("rs"), ("oplog"), ("dns")  │          │
	│  │  - WithNodeID, WithAddress, WithTopic       │          │
	│  └──────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────────┘

# Usage

Call Init once at process startup with the level and format read from
config:

	flog.Init(flog.Config{Level: flog.InfoLevel, JSONOutput: true})
	log := flog.WithComponent("rs")
	log.Info().Str("entity", "instance").Msg("applied local write")

Each of Formation's three subsystems derives its own child logger:

  - pkg/rs logs with WithComponent("rs") and WithAddress(actor) so every
    apply/merge/quarantine line carries the writer's signing address.
  - pkg/oplog logs with WithComponent("oplog") and WithTopic(topic, sub)
    so fan-out, backpressure, and bootstrap lines can be filtered per topic.
  - pkg/georesolver logs with WithComponent("georesolver") for query and
    health-transition events.

# Log levels

  - Debug: per-operation detail (individual merges, probe results)
  - Info: lifecycle events (bootstrap complete, node joined, record verified)
  - Warn: recoverable anomalies (quarantined delta, circuit breaker opened)
  - Error: operation failures requiring operator attention
*/
package flog
