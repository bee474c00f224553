package wire

import "hash/fnv"

// knownTopics assigns stable small integers to the topics spec.md §4.2
// enumerates (plus the CIDR topic SPEC_FULL.md adds), so a Frame's
// TopicID round-trips to the same string on every peer without shipping
// the topic name on the wire. Topics outside this table still work: ID
// falls back to an FNV-1a hash of the name, stable across restarts
// though not guaranteed collision-free — acceptable for a table meant to
// save bytes, not to replace the topic string as the source of truth.
var knownTopics = map[string]uint16{
	"account-updates":  1,
	"instance-updates": 2,
	"node-updates":     3,
	"dns-updates":      4,
	"cidr-updates":     5,
	"peer-updates":     6,
}

var topicNames = func() map[uint16]string {
	m := make(map[uint16]string, len(knownTopics))
	for name, id := range knownTopics {
		m[id] = name
	}
	return m
}()

// TopicID maps a topic name to its wire ID.
func TopicID(topic string) uint16 {
	if id, ok := knownTopics[topic]; ok {
		return id
	}
	h := fnv.New32a()
	h.Write([]byte(topic))
	return uint16(h.Sum32())
}

// TopicName maps a wire ID back to its topic name, for the fixed table
// above. Unknown IDs (from the hash fallback) return ok=false; a peer
// receiving one that it doesn't itself have a name for logs and drops
// the frame rather than guessing.
func TopicName(id uint16) (string, bool) {
	name, ok := topicNames[id]
	return name, ok
}
