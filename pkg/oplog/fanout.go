package oplog

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/events"
	"github.com/formthefog/formation-sub001/pkg/oplog/wire"
)

// Backoff bounds for a peer fan-out connection's reconnect loop
// (spec.md §4.2: "1s initial, doubling, capped at 60s").
const (
	initialBackoff    = time.Second
	maxBackoff        = 60 * time.Second
	breakerThreshold  = 5                // consecutive failures before opening
	breakerCooldown   = 30 * time.Second // half-open probe interval
	dialTimeout       = 5 * time.Second
	writeDeadlineStep = 10 * time.Second
)

// breakerState is a per-peer circuit breaker: Closed passes every send
// attempt through, Open skips connection attempts entirely until
// breakerCooldown elapses (half-open probe), and a stream that ends
// without error (the context canceled, or the peer closing the connection
// after at least one record was sent) returns it to Closed.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
)

// Peer is one fan-out replication target: a remote address the FanOut
// manager maintains one persistent connection to per replicated topic.
type Peer struct {
	Addr string
}

// FanOut replicates every record written through Log.Write to a fixed
// set of peers over persistent TCP connections framed with pkg/oplog/wire,
// one goroutine per (topic, peer) pair, reconnecting with exponential
// backoff and tripping a circuit breaker after repeated failures
// (spec.md §4.2).
type FanOut struct {
	log    *Log
	peers  []Peer
	broker *events.Broker
	logger zerolog.Logger
	topics []string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFanOut constructs a FanOut replicating topics to peers. Call Start to
// begin the per-(topic,peer) dial loops and Stop to tear them down.
func NewFanOut(log *Log, broker *events.Broker, logger zerolog.Logger, topics []string, peers []Peer) *FanOut {
	return &FanOut{log: log, peers: peers, broker: broker, logger: logger, topics: topics}
}

// Start launches one reconnect-and-stream goroutine per (topic, peer).
func (f *FanOut) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	for _, topic := range f.topics {
		for _, peer := range f.peers {
			f.wg.Add(1)
			go f.run(ctx, topic, peer)
		}
	}
}

// Stop cancels every fan-out goroutine and waits for them to exit.
func (f *FanOut) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

func (f *FanOut) run(ctx context.Context, topic string, peer Peer) {
	defer f.wg.Done()

	backoff := initialBackoff
	consecutiveFailures := 0
	breaker := breakerClosed
	var breakerOpenedAt time.Time

	for {
		if ctx.Err() != nil {
			return
		}

		if breaker == breakerOpen {
			if time.Since(breakerOpenedAt) < breakerCooldown {
				select {
				case <-ctx.Done():
					return
				case <-time.After(breakerCooldown):
				}
			}
		}

		if err := f.stream(ctx, topic, peer); err != nil {
			consecutiveFailures++
			f.logger.Warn().Err(err).Str("topic", topic).Str("peer", peer.Addr).Int("consecutive_failures", consecutiveFailures).Msg("fan-out stream to peer failed")
			if consecutiveFailures >= breakerThreshold && breaker == breakerClosed {
				breaker = breakerOpen
				breakerOpenedAt = time.Now()
				f.broker.Publish(&events.Event{
					Type:    events.EventCircuitOpened,
					Message: "fan-out circuit breaker opened for peer " + peer.Addr + " on topic " + topic,
				})
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// stream returned cleanly (ctx canceled, or peer closed after a
		// successful run): reset backoff and breaker state.
		backoff = initialBackoff
		consecutiveFailures = 0
		if breaker == breakerOpen {
			breaker = breakerClosed
			f.broker.Publish(&events.Event{
				Type:    events.EventCircuitClosed,
				Message: "fan-out circuit breaker closed for peer " + peer.Addr + " on topic " + topic,
			})
		}
	}
}

// stream dials peer, subscribes to topic's replication tap, and streams
// every record across the connection as a wire.Frame until ctx is
// canceled or the connection breaks.
func (f *FanOut) stream(ctx context.Context, topic string, peer Peer) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", peer.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, unsubscribe, err := f.log.subscribeReplication(topic)
	if err != nil {
		return err
	}
	defer unsubscribe()

	// A failed read is how a peer closing the connection shows up
	// between records; anything the peer sends is discarded.
	peerGone := make(chan struct{})
	go func() {
		buf := make([]byte, 512)
		for {
			if _, err := conn.Read(buf); err != nil {
				close(peerGone)
				return
			}
		}
	}()

	topicID := wire.TopicID(topic)
	sent := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-peerGone:
			if sent {
				return nil
			}
			return net.ErrClosed
		case rec, ok := <-ch:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadlineStep))
			if err := rec.toFrame(topicID).Encode(conn); err != nil {
				return err
			}
			sent = true
		}
	}
}
