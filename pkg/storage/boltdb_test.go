package storage

import (
	"encoding/json"
	"testing"

	"github.com/formthefog/formation-sub001/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRegister(t *testing.T, value string) types.Register {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal value: %v", err)
	}
	return types.Register{
		Value: raw,
		Clock: types.HybridClock{WallMS: 1000, Counter: 0},
	}
}

func TestBoltStorePutGetRegister(t *testing.T) {
	s := newTestStore(t)
	reg := testRegister(t, "hello")

	if err := s.PutRegister(types.EntityInstance, "inst-1", reg); err != nil {
		t.Fatalf("PutRegister() error = %v", err)
	}

	got, found, err := s.GetRegister(types.EntityInstance, "inst-1")
	if err != nil {
		t.Fatalf("GetRegister() error = %v", err)
	}
	if !found {
		t.Fatal("GetRegister() found = false, want true")
	}
	if string(got.Value) != string(reg.Value) {
		t.Errorf("GetRegister() value = %s, want %s", got.Value, reg.Value)
	}
}

func TestBoltStoreGetRegisterMissing(t *testing.T) {
	s := newTestStore(t)
	_, found, err := s.GetRegister(types.EntityInstance, "missing")
	if err != nil {
		t.Fatalf("GetRegister() error = %v", err)
	}
	if found {
		t.Error("GetRegister() found = true, want false")
	}
}

func TestBoltStoreListRegisters(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutRegister(types.EntityNode, "node-1", testRegister(t, "a")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutRegister(types.EntityNode, "node-2", testRegister(t, "b")); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListRegisters(types.EntityNode)
	if err != nil {
		t.Fatalf("ListRegisters() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListRegisters() len = %d, want 2", len(all))
	}
}

func TestBoltStoreDeleteRegister(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutRegister(types.EntityAccount, "acct-1", testRegister(t, "x")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRegister(types.EntityAccount, "acct-1"); err != nil {
		t.Fatalf("DeleteRegister() error = %v", err)
	}
	_, found, err := s.GetRegister(types.EntityAccount, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("GetRegister() found = true after delete, want false")
	}
}

func TestBoltStoreUnknownEntityKind(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.GetRegister(types.EntityKind("bogus"), "x")
	if err == nil {
		t.Error("GetRegister() with unknown kind: error = nil, want error")
	}
}

func TestBoltStoreWatermarkRoundtrip(t *testing.T) {
	s := newTestStore(t)

	seq, err := s.GetWatermark("instances")
	if err != nil {
		t.Fatalf("GetWatermark() error = %v", err)
	}
	if seq != 0 {
		t.Errorf("GetWatermark() on unset topic = %d, want 0", seq)
	}

	if err := s.SetWatermark("instances", 42); err != nil {
		t.Fatalf("SetWatermark() error = %v", err)
	}
	seq, err = s.GetWatermark("instances")
	if err != nil {
		t.Fatalf("GetWatermark() error = %v", err)
	}
	if seq != 42 {
		t.Errorf("GetWatermark() = %d, want 42", seq)
	}
}
