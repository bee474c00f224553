/*
Package health implements the node-scoped health checkers that back the
Geo Resolver's health-aware ranking (spec.md §4.3): HTTP and TCP probes
against the IPs listed in a DNSRecord's targets, with hysteresis so a
single transient failure doesn't flap a target's served health state.

# Architecture

	┌──────────────────────────────────────────────────────────┐
	│                     Checker interface                    │
	│  • Check(ctx) Result                                      │
	│  • Type() CheckType                                       │
	└────────┬───────────────────────────────────────┬─────────┘
	         ▼                                        ▼
	    ┌─────────┐                              ┌─────────┐
	    │HTTPCheck│                              │ TCPCheck│
	    │  -er    │                              │  -er    │
	    └─────────┘                              └─────────┘

A Prober pairs one Checker with one (fqdn, ip) target, runs it on
Config.Interval, and tracks the result through a Status (consecutive
failure/success hysteresis: Retries consecutive failures before
Healthy flips false, a single success before it flips back true).

# RS boundary

spec.md frames the health checker as an external collaborator of the
Replicated Store: GR never writes health state itself, only reads it
back ranked. Prober is the reference implementation of that boundary
contract (spec.md Open Question #3's resolution) — on every transition
it reads the current DNSRecord, updates the matching target's Health
and UpdatedAt, and posts the new value through RSWriter.ApplyLocal,
signed under the node's own identity exactly like any authenticated
client write. There is no special-cased "system write" path.

# Why HTTP and TCP only

Warren's equivalent package also carried an exec checker that ran
commands inside a container. Formation has no container runtime to
exec into (VM/container lifecycle is an external collaborator per
spec.md's Non-goals), so that checker has no home here and was dropped
rather than adapted to something it cannot check.
*/
package health
