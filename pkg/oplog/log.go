package oplog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/formthefog/formation-sub001/pkg/events"
	"github.com/formthefog/formation-sub001/pkg/oplog/wire"
	"github.com/formthefog/formation-sub001/pkg/storage"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// DefaultHighWaterMark is the number of unacknowledged records a topic's
// backpressure ring accepts before Write starts returning ErrBusy
// (spec.md §4.2).
const DefaultHighWaterMark = 4096

// topicState is one topic's durable segment plus its in-memory fan-out
// taps: local subscribers get every record; replication subscribers
// (fed only by Write, never WriteLocal) feed pkg/oplog's own fan-out
// manager.
type topicState struct {
	seg *segment

	mu      sync.Mutex
	pending int

	subsMu          sync.Mutex
	localSubs       map[chan Record]struct{}
	replicationSubs map[chan Record]struct{}
}

// Log is the Operation Log: a durable, topic-partitioned, append-only
// message queue (spec.md §4.2). One Log instance owns every topic's
// segment files under dataDir, and is the single writer task per topic
// spec.md §5 requires.
type Log struct {
	dataDir   string
	store     storage.Store
	broker    *events.Broker
	highWater int

	mu     sync.Mutex
	topics map[string]*topicState

	bootstrapped atomic.Bool
}

// Option configures a Log at construction.
type Option func(*Log)

// WithHighWaterMark overrides DefaultHighWaterMark.
func WithHighWaterMark(n int) Option {
	return func(l *Log) { l.highWater = n }
}

// New constructs a Log rooted at dataDir, using store for watermark
// persistence (spec.md §9 Open Question #1) and broker for bootstrap and
// circuit-breaker observability events.
func New(dataDir string, store storage.Store, broker *events.Broker, opts ...Option) *Log {
	l := &Log{
		dataDir:   dataDir,
		store:     store,
		broker:    broker,
		highWater: DefaultHighWaterMark,
		topics:    make(map[string]*topicState),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) topicFor(topic string) (*topicState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ts, ok := l.topics[topic]; ok {
		return ts, nil
	}
	topicID := wire.TopicID(topic)
	if _, ok := wire.TopicName(topicID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	seg, err := openSegment(l.dataDir, topic, topicID)
	if err != nil {
		return nil, err
	}
	ts := &topicState{
		seg:             seg,
		localSubs:       make(map[chan Record]struct{}),
		replicationSubs: make(map[chan Record]struct{}),
	}
	l.topics[topic] = ts
	return ts, nil
}

// Write durably appends a signed record to (topic, sub), addressed by
// key, and returns its assigned sequence number, fsyncing before
// returning (spec.md §4.2). The record is also handed to every local
// subscriber and to the replication taps pkg/oplog's fan-out manager
// reads from.
func (l *Log) Write(topic string, sub uint16, key string, payload []byte, emitter types.Address, sig types.Signature) (uint64, error) {
	state, err := l.topicFor(topic)
	if err != nil {
		return 0, err
	}

	state.mu.Lock()
	if state.pending >= l.highWater {
		state.mu.Unlock()
		return 0, ErrBusy
	}
	state.pending++
	state.mu.Unlock()

	rec := Record{
		Sub:       sub,
		Key:       key,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		Emitter:   emitter,
		Signature: sig,
	}

	written, err := state.seg.append(rec)
	if err != nil {
		state.mu.Lock()
		state.pending--
		state.mu.Unlock()
		return 0, fmt.Errorf("append to topic %s: %w", topic, err)
	}

	state.broadcast(written, true)
	return written.Seq, nil
}

// WriteLocal durably appends payload, addressed by key, without fanning
// it out to peers (spec.md §4.2): used for node-local state no other
// replica needs to see. Local Subscribe taps still observe it.
func (l *Log) WriteLocal(topic string, sub uint16, key string, payload []byte) (uint64, error) {
	state, err := l.topicFor(topic)
	if err != nil {
		return 0, err
	}
	rec := Record{Sub: sub, Key: key, Payload: payload, Timestamp: time.Now().UnixMilli()}
	written, err := state.seg.append(rec)
	if err != nil {
		return 0, fmt.Errorf("append to topic %s: %w", topic, err)
	}
	state.broadcast(written, false)
	return written.Seq, nil
}

// LatestSeq returns the sequence number of the most recently written
// record on topic, or 0 if none has been written yet — the watermark a
// bootstrap snapshot response is consistent as of (spec.md §4.2 step 1).
func (l *Log) LatestSeq(topic string) (uint64, error) {
	state, err := l.topicFor(topic)
	if err != nil {
		return 0, err
	}
	return state.seg.latestSeq(), nil
}

// Ack records that one fan-out delivery on topic has been acknowledged,
// decrementing topic's in-flight count to relieve backpressure (spec.md
// §4.2).
func (l *Log) Ack(topic string) {
	state, err := l.topicFor(topic)
	if err != nil {
		return
	}
	state.mu.Lock()
	if state.pending > 0 {
		state.pending--
	}
	state.mu.Unlock()
}

func (ts *topicState) broadcast(rec Record, replicate bool) {
	ts.subsMu.Lock()
	defer ts.subsMu.Unlock()
	for ch := range ts.localSubs {
		select {
		case ch <- rec:
		default:
		}
	}
	if replicate {
		for ch := range ts.replicationSubs {
			select {
			case ch <- rec:
			default:
			}
		}
	}
}

// ReadTopic returns every record ever written to topic, in order.
func (l *Log) ReadTopic(topic string) ([]Record, error) {
	return l.ReadAfter(topic, 0)
}

// ReadTopicN returns up to n of topic's oldest records.
func (l *Log) ReadTopicN(topic string, n int) ([]Record, error) {
	return l.ReadAfterN(topic, 0, n)
}

// ReadAfter returns every record on topic with seq > after, in order —
// the primitive OL bootstrap catch-up (spec.md §4.2 step 4) is built on.
func (l *Log) ReadAfter(topic string, after uint64) ([]Record, error) {
	return l.ReadAfterN(topic, after, 0)
}

// ReadAfterN returns up to n records on topic with seq > after.
func (l *Log) ReadAfterN(topic string, after uint64, n int) ([]Record, error) {
	state, err := l.topicFor(topic)
	if err != nil {
		return nil, err
	}
	return state.seg.readAfter(after, n)
}

// Subscribe returns a channel receiving every record written to topic
// from this point on (Write and WriteLocal alike), and an unsubscribe
// function the caller must call when done.
func (l *Log) Subscribe(topic string) (<-chan Record, func(), error) {
	state, err := l.topicFor(topic)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan Record, 256)
	state.subsMu.Lock()
	state.localSubs[ch] = struct{}{}
	state.subsMu.Unlock()
	unsubscribe := func() {
		state.subsMu.Lock()
		delete(state.localSubs, ch)
		state.subsMu.Unlock()
	}
	return ch, unsubscribe, nil
}

// subscribeReplication is pkg/oplog's own fan-out manager's entry point:
// it receives only records written through Write, never WriteLocal.
func (l *Log) subscribeReplication(topic string) (<-chan Record, func(), error) {
	state, err := l.topicFor(topic)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan Record, 256)
	state.subsMu.Lock()
	state.replicationSubs[ch] = struct{}{}
	state.subsMu.Unlock()
	unsubscribe := func() {
		state.subsMu.Lock()
		delete(state.replicationSubs, ch)
		state.subsMu.Unlock()
	}
	return ch, unsubscribe, nil
}

// BootstrapComplete reports whether this node has finished the OL
// bootstrap catch-up sequence (spec.md §4.2's bootstrap_complete step).
func (l *Log) BootstrapComplete() bool {
	return l.bootstrapped.Load()
}

// MarkBootstrapComplete flips BootstrapComplete to true and publishes
// events.EventBootstrapDone.
func (l *Log) MarkBootstrapComplete() {
	if l.bootstrapped.CompareAndSwap(false, true) {
		l.broker.Publish(&events.Event{Type: events.EventBootstrapDone, Message: "operation log bootstrap complete"})
	}
}

// Compact rewrites topic's segment to drop every record with seq <= the
// topic's persisted watermark, writing the survivors into a new segment
// epoch (spec.md §6). It is the node orchestrator's periodic compaction pass,
// not something ApplyLocal or MergeRemote ever call directly.
func (l *Log) Compact(topic string) error {
	state, err := l.topicFor(topic)
	if err != nil {
		return err
	}
	watermark, err := l.store.GetWatermark(topic)
	if err != nil {
		return fmt.Errorf("read watermark for %s: %w", topic, err)
	}
	return state.seg.compact(watermark)
}

// Close closes every open segment file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, state := range l.topics {
		if err := state.seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
