/*
Package oplog implements the Operation Log: a durable, topic-partitioned,
append-only message queue that carries every signed Replicated Store
write between nodes (spec.md §4.2).

# Architecture

	┌──────────────────── pkg/oplog ─────────────────────────────┐
	│                                                              │
	│  ┌─────────────┐   ┌──────────────┐   ┌──────────────────┐ │
	│  │   Log       │──▶│  segment     │──▶│  <data>/log/      │ │
	│  │ (per topic) │   │ (per topic,  │   │    <topic>/       │ │
	│  │ ring +      │   │  fsynced)    │   │      <epoch>.log  │ │
	│  │ subscribers │   └──────────────┘   └──────────────────┘ │
	│  └──────┬──────┘                                            │
	│         │ subscribeReplication                              │
	│  ┌──────▼──────┐        ┌──────────────────┐                │
	│  │   FanOut    │───────▶│ peer connections │                │
	│  │ (backoff +  │        │ (wire.Frame)     │                │
	│  │  breaker)   │        └──────────────────┘                │
	│  └─────────────┘                                            │
	│                                                              │
	│  ┌──────────────────────────────────────────┐               │
	│  │           Bootstrapper                    │               │
	│  │  fetch snapshot → watermark               │               │
	│  │  → read_after catch-up → bootstrap_done   │               │
	│  └──────────────────────────────────────────┘               │
	└──────────────────────────────────────────────────────────────┘

pkg/oplog/wire defines the length-prefixed binary frame both segment
files and peer connections share (spec.md §6), independent of storage or
transport.

# Relationship to pkg/rs

pkg/oplog never imports pkg/rs: pkg/rs depends on oplog only through the
narrow WriteAheadLog interface it declares itself (pkg/rs/oplog.go), and
Bootstrapper calls back into caller-supplied applySnapshot/applyRecord
functions rather than touching pkg/rs.Store directly. The node
orchestrator (pkg/node) wires the two together.

# Backpressure

Log.Write returns ErrBusy once a topic's in-flight (unacknowledged)
record count reaches its high-water mark, so a lagging disk writer or
saturated fan-out degrades into rejected writes rather than unbounded
memory growth (spec.md §4.2). The HTTP ingress layer (pkg/api) maps
ErrBusy to an HTTP 503 with a Retry-After header.
*/
package oplog
