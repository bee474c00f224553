package oplog

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/events"
	"github.com/formthefog/formation-sub001/pkg/oplog/wire"
)

// Bootstrapper runs the catch-up sequence a joining (or rejoining) node
// performs against one already-caught-up peer (spec.md §4.2):
//
//  1. fetch a snapshot of current entity state
//  2. remember the Operation Log watermark the snapshot is consistent as of
//  3. replay every record the peer holds strictly after the watermark
//     ("read_after" catch-up)
//  4. mark bootstrap complete
//
// Bootstrapper opens no subscription to the peer's live fan-out stream;
// it reads only the snapshot and the backlog after its watermark.
//
// ApplySnapshot and ApplyRecord are supplied by the node orchestrator,
// which owns the pkg/rs.Store this data is destined for — Bootstrapper
// itself only speaks the wire protocol, the same inversion
// pkg/rs.WriteAheadLog uses to keep pkg/rs and pkg/oplog decoupled.
type Bootstrapper struct {
	log           *Log
	broker        *events.Broker
	logger        zerolog.Logger
	applySnapshot func(topic string, payload []byte) error
	applyRecord   func(rec Record) error
}

// NewBootstrapper constructs a Bootstrapper for log, invoking
// applySnapshot once per topic's snapshot chunk and applyRecord once per
// backlog record replayed from the peer.
func NewBootstrapper(log *Log, broker *events.Broker, logger zerolog.Logger, applySnapshot func(topic string, payload []byte) error, applyRecord func(rec Record) error) *Bootstrapper {
	return &Bootstrapper{log: log, broker: broker, logger: logger, applySnapshot: applySnapshot, applyRecord: applyRecord}
}

// Run executes the bootstrap sequence against peerAddr for every topic in
// topics, then marks the Log bootstrapped.
func (b *Bootstrapper) Run(ctx context.Context, peerAddr string, topics []string) error {
	b.broker.Publish(&events.Event{Type: events.EventBootstrapStarted, Message: "bootstrap started against peer " + peerAddr})

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", peerAddr)
	if err != nil {
		return fmt.Errorf("dial bootstrap peer %s: %w", peerAddr, err)
	}
	defer conn.Close()

	for _, topic := range topics {
		watermark, err := b.fetchSnapshot(conn, topic)
		if err != nil {
			return fmt.Errorf("fetch snapshot for topic %s: %w", topic, err)
		}
		if err := b.readAfterCatchup(conn, topic, watermark); err != nil {
			return fmt.Errorf("catch up topic %s from watermark %d: %w", topic, watermark, err)
		}
		b.logger.Info().Str("topic", topic).Uint64("watermark", watermark).Msg("bootstrap caught up topic")
	}

	b.log.MarkBootstrapComplete()
	return nil
}

// fetchSnapshot performs steps 1-2: request topic's current snapshot and
// return the Operation Log sequence it is consistent as of.
func (b *Bootstrapper) fetchSnapshot(conn net.Conn, topic string) (uint64, error) {
	topicID := wire.TopicID(topic)
	req := wire.Frame{Type: wire.MsgSnapshotReq, TopicID: topicID}
	conn.SetWriteDeadline(time.Now().Add(writeDeadlineStep))
	if err := req.Encode(conn); err != nil {
		return 0, fmt.Errorf("send snapshot request: %w", err)
	}

	var watermark uint64
	for {
		frame, err := wire.Decode(conn)
		if err != nil {
			return 0, fmt.Errorf("read snapshot chunk: %w", err)
		}
		if frame.Type != wire.MsgSnapshotChunk {
			return 0, fmt.Errorf("unexpected frame type %s while reading snapshot", frame.Type)
		}
		watermark = frame.Seq
		if len(frame.Payload) == 0 {
			// zero-length chunk marks end of snapshot stream.
			return watermark, nil
		}
		if err := b.applySnapshot(topic, frame.Payload); err != nil {
			return 0, fmt.Errorf("apply snapshot chunk: %w", err)
		}
	}
}

// readAfterCatchup performs step 3: request every record the peer holds
// for topic strictly after watermark, applying each in order.
func (b *Bootstrapper) readAfterCatchup(conn net.Conn, topic string, watermark uint64) error {
	topicID := wire.TopicID(topic)
	req := wire.Frame{Type: wire.MsgSnapshotReq, TopicID: topicID, Seq: watermark}
	conn.SetWriteDeadline(time.Now().Add(writeDeadlineStep))
	if err := req.Encode(conn); err != nil {
		return fmt.Errorf("send read_after request: %w", err)
	}

	for {
		frame, err := wire.Decode(conn)
		if err != nil {
			return fmt.Errorf("read catch-up frame: %w", err)
		}
		switch frame.Type {
		case wire.MsgAck:
			return nil // peer signals catch-up exhausted
		case wire.MsgWrite:
			rec := recordFromFrame(topic, frame)
			if err := b.applyRecord(rec); err != nil {
				return fmt.Errorf("apply catch-up record seq %d: %w", rec.Seq, err)
			}
		default:
			return fmt.Errorf("unexpected frame type %s during read_after catch-up", frame.Type)
		}
	}
}

// ServeBootstrap is the peer side of the protocol Bootstrapper drives: it
// reads one request frame from conn and replies either with the
// requesting topic's current snapshot (Seq == 0) or with every record
// strictly after Seq, terminated by a MsgAck.
func ServeBootstrap(conn net.Conn, log *Log, snapshotFor func(topic string) ([][]byte, uint64, error)) error {
	frame, err := wire.Decode(conn)
	if err != nil {
		return fmt.Errorf("read bootstrap request: %w", err)
	}
	return serveBootstrapFrame(conn, frame, log, snapshotFor)
}

// serveBootstrapFrame answers an already-decoded MsgSnapshotReq frame, the
// logic ServeBootstrap wraps and ServeConn dispatches to once it has told
// a bootstrap request apart from a live replication push on the same
// listener.
func serveBootstrapFrame(conn net.Conn, frame wire.Frame, log *Log, snapshotFor func(topic string) ([][]byte, uint64, error)) error {
	if frame.Type != wire.MsgSnapshotReq {
		return fmt.Errorf("unexpected frame type %s for bootstrap request", frame.Type)
	}
	topic, ok := wire.TopicName(frame.TopicID)
	if !ok {
		return fmt.Errorf("unknown topic id %d in bootstrap request", frame.TopicID)
	}

	if frame.Seq == 0 {
		chunks, watermark, err := snapshotFor(topic)
		if err != nil {
			return fmt.Errorf("build snapshot for topic %s: %w", topic, err)
		}
		for _, chunk := range chunks {
			resp := wire.Frame{Type: wire.MsgSnapshotChunk, TopicID: frame.TopicID, Seq: watermark, Payload: chunk}
			if err := resp.Encode(conn); err != nil {
				return fmt.Errorf("write snapshot chunk: %w", err)
			}
		}
		end := wire.Frame{Type: wire.MsgSnapshotChunk, TopicID: frame.TopicID, Seq: watermark}
		return end.Encode(conn)
	}

	records, err := log.ReadAfter(topic, frame.Seq)
	if err != nil {
		return fmt.Errorf("read catch-up backlog for topic %s: %w", topic, err)
	}
	topicID := wire.TopicID(topic)
	for _, rec := range records {
		if err := rec.toFrame(topicID).Encode(conn); err != nil {
			return fmt.Errorf("write catch-up record: %w", err)
		}
	}
	done := wire.Frame{Type: wire.MsgAck, TopicID: frame.TopicID}
	return done.Encode(conn)
}
