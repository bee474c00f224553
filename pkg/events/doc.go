/*
Package events provides an in-memory event broker for Formation's
observability signals: RS equivocations and quarantines, OL bootstrap and
circuit-breaker transitions, and GR health changes.

The events package implements a lightweight event bus for broadcasting
these signals to interested subscribers. It supports asynchronous,
non-blocking delivery so a slow subscriber (an audit log, a metrics
collector) never backpressures the RS/OL/GR hot paths that publish.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop → Subscriber Channels       │          │
	│  │                    (buffer: 50 each)        │          │
	│  └──────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────────┘

# Event catalog

RS events: EventRegisterApplied, EventRegisterMerged, EventEquivocation
(spec.md §4.1's Conflict observability event), EventQuarantine (an
unverifiable remote delta), EventTombstoneGCed, EventReconcileRepair.

OL events: EventBootstrapStarted, EventBootstrapDone, EventCircuitOpened,
EventCircuitClosed.

GR events: EventDNSHealthChanged, for a target's Healthy/Degraded/
Unhealthy transition (spec.md §4.3, scenario S2).

Node events: EventNodeJoined, EventNodeLeft, EventNodeDown, for peers
coming and going.

The GR and node event types are declared here only; no package in this
module publishes them.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go func() {
		for event := range sub {
			if event.Type == events.EventEquivocation {
				metrics.RSEquivocationsTotal.WithLabelValues(event.Metadata["kind"]).Inc()
			}
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventEquivocation,
		Message: "equivocating delta quarantined",
		Metadata: map[string]string{"kind": "instance", "key": "i-1", "actor": actor.String()},
	})

Publish is fire-and-forget: delivery is best-effort and a full subscriber
buffer silently skips that subscriber rather than blocking the publisher.
This is deliberate — RS/OL/GR must never suspend on an event subscriber.
*/
package events
