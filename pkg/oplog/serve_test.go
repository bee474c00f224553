package oplog

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/events"
	"github.com/formthefog/formation-sub001/pkg/oplog/wire"
	"github.com/formthefog/formation-sub001/pkg/storage"
	"github.com/formthefog/formation-sub001/pkg/types"
)

func TestServeConnDispatchesWriteFramesToOnRecord(t *testing.T) {
	l := newTestLog(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	received := make(chan Record, 1)
	done := make(chan error, 1)
	go func() {
		done <- ServeConn(context.Background(), serverConn, l, nil, func(topic string, rec Record) error {
			rec.Topic = topic
			received <- rec
			return nil
		})
	}()

	frame := wire.Frame{
		Type:    wire.MsgWrite,
		TopicID: wire.TopicID("instance-updates"),
		Key:     "inst-1",
		Payload: []byte("payload"),
	}
	if err := frame.Encode(clientConn); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	select {
	case rec := <-received:
		if rec.Topic != "instance-updates" || rec.Key != "inst-1" || string(rec.Payload) != "payload" {
			t.Fatalf("onRecord got %+v, want instance-updates/inst-1/payload", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ServeConn to dispatch the write frame")
	}

	clientConn.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ServeConn() error = %v after peer closed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ServeConn to return after peer closed")
	}
}

func TestServeConnAnswersBootstrapSnapshotRequest(t *testing.T) {
	l := newTestLog(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go ServeConn(context.Background(), serverConn, l, func(topic string) ([][]byte, uint64, error) {
		return [][]byte{[]byte("chunk-a")}, 7, nil
	}, nil)

	req := wire.Frame{Type: wire.MsgSnapshotReq, TopicID: wire.TopicID("instance-updates")}
	if err := req.Encode(clientConn); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	first, err := wire.Decode(clientConn)
	if err != nil {
		t.Fatalf("Decode() first chunk error = %v", err)
	}
	if first.Type != wire.MsgSnapshotChunk || string(first.Payload) != "chunk-a" {
		t.Fatalf("first chunk = %+v, want payload chunk-a", first)
	}

	end, err := wire.Decode(clientConn)
	if err != nil {
		t.Fatalf("Decode() terminator error = %v", err)
	}
	if end.Type != wire.MsgSnapshotChunk || len(end.Payload) != 0 || end.Seq != 7 {
		t.Fatalf("terminator = %+v, want empty payload at watermark 7", end)
	}
}

func TestPeerListenerServesFanOutPushesOverTheWire(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	defer store.Close()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	l := New(t.TempDir(), store, broker)

	received := make(chan Record, 1)
	pl := NewPeerListener(l, zerolog.Nop(), nil, func(topic string, rec Record) error {
		rec.Topic = topic
		received <- rec
		return nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	ln.Close() // free the port; PeerListener.Serve re-binds it below

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := ln.Addr().String()
	serveErr := make(chan error, 1)
	go func() { serveErr <- pl.Serve(ctx, addr) }()
	time.Sleep(50 * time.Millisecond) // let the listener bind before the fan-out dials it

	fo := NewFanOut(l, broker, zerolog.Nop(), []string{"instance-updates"}, []Peer{{Addr: addr}})
	fo.Start(ctx)
	defer fo.Stop()
	time.Sleep(50 * time.Millisecond) // let the fan-out goroutine dial and subscribe

	if _, err := l.Write("instance-updates", 0, "inst-1", []byte("payload"), types.Address{}, types.Signature{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case rec := <-received:
		if rec.Topic != "instance-updates" || rec.Key != "inst-1" || string(rec.Payload) != "payload" {
			t.Fatalf("onRecord got %+v, want instance-updates/inst-1/payload", rec)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the peer listener to receive the fan-out write")
	}
}
