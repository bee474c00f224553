package oplog

import (
	"testing"

	"github.com/formthefog/formation-sub001/pkg/events"
	"github.com/formthefog/formation-sub001/pkg/storage"
	"github.com/formthefog/formation-sub001/pkg/types"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	return New(t.TempDir(), store, broker)
}

func TestWriteLocalAssignsIncreasingSeq(t *testing.T) {
	l := newTestLog(t)

	seq1, err := l.WriteLocal("instance-updates", 0, "inst-1", []byte("a"))
	if err != nil {
		t.Fatalf("WriteLocal() error = %v", err)
	}
	seq2, err := l.WriteLocal("instance-updates", 0, "inst-1", []byte("b"))
	if err != nil {
		t.Fatalf("WriteLocal() error = %v", err)
	}
	if seq1 != 0 || seq2 != 1 {
		t.Fatalf("seqs = %d, %d, want 0, 1", seq1, seq2)
	}
}

func TestWriteRejectsUnknownTopic(t *testing.T) {
	l := newTestLog(t)
	if _, err := l.WriteLocal("not-a-real-topic", 0, "x", []byte("x")); err == nil {
		t.Fatal("WriteLocal() on unknown topic, want error")
	}
}

func TestWriteReturnsErrBusyAtHighWaterMark(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	l := New(t.TempDir(), store, broker, WithHighWaterMark(1))

	emitter := types.Address{}
	if _, err := l.Write("instance-updates", 0, "inst-1", []byte("a"), emitter, types.Signature{}); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	if _, err := l.Write("instance-updates", 0, "inst-1", []byte("b"), emitter, types.Signature{}); err != ErrBusy {
		t.Fatalf("second Write() error = %v, want ErrBusy", err)
	}

	l.Ack("instance-updates")
	if _, err := l.Write("instance-updates", 0, "inst-1", []byte("c"), emitter, types.Signature{}); err != nil {
		t.Fatalf("Write() after Ack error = %v", err)
	}
}

func TestReadAfterReturnsOnlyNewerRecords(t *testing.T) {
	l := newTestLog(t)
	for _, payload := range []string{"a", "b", "c"} {
		if _, err := l.WriteLocal("node-updates", 0, "node-1", []byte(payload)); err != nil {
			t.Fatalf("WriteLocal() error = %v", err)
		}
	}

	records, err := l.ReadAfter("node-updates", 1)
	if err != nil {
		t.Fatalf("ReadAfter() error = %v", err)
	}
	if len(records) != 1 || string(records[0].Payload) != "c" {
		t.Fatalf("ReadAfter(1) = %+v, want one record with payload c", records)
	}
}

func TestSubscribeReceivesSubsequentWrites(t *testing.T) {
	l := newTestLog(t)
	ch, unsubscribe, err := l.Subscribe("account-updates")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsubscribe()

	if _, err := l.WriteLocal("account-updates", 0, "acct-1", []byte("hello")); err != nil {
		t.Fatalf("WriteLocal() error = %v", err)
	}

	select {
	case rec := <-ch:
		if string(rec.Payload) != "hello" {
			t.Fatalf("received payload %q, want hello", rec.Payload)
		}
	default:
		t.Fatal("expected a record on the subscription channel")
	}
}

func TestBootstrapCompleteStartsFalse(t *testing.T) {
	l := newTestLog(t)
	if l.BootstrapComplete() {
		t.Fatal("BootstrapComplete() = true before MarkBootstrapComplete")
	}
	l.MarkBootstrapComplete()
	if !l.BootstrapComplete() {
		t.Fatal("BootstrapComplete() = false after MarkBootstrapComplete")
	}
}

func TestCompactDropsRecordsAtOrBelowWatermark(t *testing.T) {
	l := newTestLog(t)
	for _, payload := range []string{"a", "b", "c"} {
		if _, err := l.WriteLocal("cidr-updates", 0, "cidr-1", []byte(payload)); err != nil {
			t.Fatalf("WriteLocal() error = %v", err)
		}
	}

	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SetWatermark("cidr-updates", 0); err != nil {
		t.Fatalf("SetWatermark() error = %v", err)
	}
	l.store = store

	if err := l.Compact("cidr-updates"); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}

	records, err := l.ReadTopic("cidr-updates")
	if err != nil {
		t.Fatalf("ReadTopic() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d after compaction, want 2", len(records))
	}
}
