package oplog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/oplog/wire"
)

// PeerListener is the peer side of both bootstrap.go's Bootstrapper and
// fanout.go's FanOut: it accepts the raw TCP connections those two dial
// out to and dispatches each one's frames to the right handler, the
// listener pkg/node wires to every configured peer's replication traffic
// (spec.md §4.2).
type PeerListener struct {
	log         *Log
	logger      zerolog.Logger
	snapshotFor func(topic string) ([][]byte, uint64, error)
	onRecord    func(topic string, rec Record) error
}

// NewPeerListener constructs a PeerListener over log. snapshotFor answers
// bootstrap snapshot requests (step 1 of spec.md §4.2); onRecord is
// invoked once per live MsgWrite frame a peer's fan-out stream pushes,
// ordinarily to merge it into the Replicated Store.
func NewPeerListener(log *Log, logger zerolog.Logger, snapshotFor func(topic string) ([][]byte, uint64, error), onRecord func(topic string, rec Record) error) *PeerListener {
	return &PeerListener{log: log, logger: logger, snapshotFor: snapshotFor, onRecord: onRecord}
}

// Serve listens on addr and accepts peer connections until ctx is
// canceled, handling each connection on its own goroutine until the peer
// disconnects. It blocks the way api.Server.Serve does, so pkg/node runs
// it the same way it runs the HTTP ingress.
func (pl *PeerListener) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on peer address %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept peer connection: %w", err)
		}
		go pl.handle(ctx, conn)
	}
}

func (pl *PeerListener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if err := ServeConn(ctx, conn, pl.log, pl.snapshotFor, pl.onRecord); err != nil {
		pl.logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("peer connection closed")
	}
}

// ServeConn handles one accepted peer connection for its lifetime,
// decoding frames in a loop and dispatching each by type: a MsgSnapshotReq
// gets the same bootstrap-answering logic ServeBootstrap wraps, and a
// MsgWrite is handed to onRecord as a live replicated record — the same
// connection a dialing peer may use for both in sequence (bootstrap catch
// up, then indefinite fan-out once caught up). It returns nil when the
// peer closes the connection cleanly.
func ServeConn(ctx context.Context, conn net.Conn, log *Log, snapshotFor func(topic string) ([][]byte, uint64, error), onRecord func(topic string, rec Record) error) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame, err := wire.Decode(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		switch frame.Type {
		case wire.MsgSnapshotReq:
			if err := serveBootstrapFrame(conn, frame, log, snapshotFor); err != nil {
				return err
			}
		case wire.MsgWrite:
			topic, ok := wire.TopicName(frame.TopicID)
			if !ok {
				continue // unknown topic id: drop rather than tear down the connection
			}
			if err := onRecord(topic, recordFromFrame(topic, frame)); err != nil {
				return fmt.Errorf("apply replicated record on topic %s: %w", topic, err)
			}
		case wire.MsgHeartbeat:
			// keepalive: nothing to do
		default:
			return fmt.Errorf("unexpected frame type %s on peer connection", frame.Type)
		}
	}
}
