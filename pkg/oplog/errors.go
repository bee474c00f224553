package oplog

import "errors"

// ErrBusy is returned by Write when a topic's backpressure ring is full
// and the disk writer is lagging (spec.md §4.2). The HTTP ingress layer
// maps this to a 503 with Retry-After (spec.md §6).
var ErrBusy = errors.New("oplog: topic busy, backpressure ring full")

// ErrUnknownTopic is returned for any topic not in wire's known-topic
// table, since the wire codec cannot assign it a stable TopicID.
var ErrUnknownTopic = errors.New("oplog: unknown topic")
