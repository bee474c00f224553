/*
Package georesolver implements Formation's Geo Resolver (GR): an
authoritative DNS responder that answers queries by looking up candidate
IPs from the Replicated Store, filtering by health, and ranking by
geographic proximity to the querying client (spec.md §4.3).

# Pipeline

	query ─▶ Resolver.Resolve
	           │
	           ├─▶ RS lookup of the DNS Record by fqdn
	           │     absent + in zone  → NXDOMAIN
	           │     absent + not ours → forward upstream
	           │     RS unreachable    → last-known-good cache, else SERVFAIL
	           │
	           ├─▶ downgrade stale targets (Healthy → Degraded → Unhealthy)
	           ├─▶ filterByHealth (Healthy > Degraded > all-if-all-unhealthy)
	           ├─▶ rank (great-circle distance + weighting + region/country bias)
	           └─▶ truncate to MaxAnswers, cache, return

GR never writes to the Replicated Store; a separate health checker
(pkg/health) is the only writer of DNS target health state.

# Geo database

No MaxMind-style geolocation library appears anywhere in the retrieval
pack this repository was built from, so geodb.go is a deliberate stdlib
component: a CIDR-to-(lat,lon,region,country) table loaded from a CSV
file with encoding/csv and looked up with net/netip. When the client's
address has no entry, ranking degrades to a random shuffle (spec.md
§4.3's "geolocation DB missing" failure mode) rather than failing the
query; a target whose address has no entry is ranked after every target
that has one.
*/
package georesolver
