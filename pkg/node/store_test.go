package node

import (
	"testing"

	"github.com/formthefog/formation-sub001/pkg/events"
	"github.com/formthefog/formation-sub001/pkg/rs"
	"github.com/formthefog/formation-sub001/pkg/storage"
	"github.com/formthefog/formation-sub001/pkg/types"
)

func newTestControlPlaneStore(t *testing.T) (controlPlaneStore, *storage.BoltStore) {
	t.Helper()
	db, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	broker := events.NewBroker()
	store := rs.New(db, broker, types.Address{}, rs.WithAuthorizer(rs.DefaultAuthorizer{}))
	return controlPlaneStore{rs: store, db: db}, db
}

func TestControlPlaneStoreReadDelegatesToRS(t *testing.T) {
	cp, db := newTestControlPlaneStore(t)
	reg := types.Register{Value: []byte(`{"foo":1}`)}
	if err := db.PutRegister(types.EntityNode, "node-1", reg); err != nil {
		t.Fatalf("PutRegister() error = %v", err)
	}

	value, found, err := cp.Read(types.EntityNode, "node-1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !found {
		t.Fatal("Read() found = false, want true")
	}
	if string(value) != `{"foo":1}` {
		t.Fatalf("Read() value = %s, want {\"foo\":1}", value)
	}
}

func TestControlPlaneStoreListRegistersDelegatesToStorage(t *testing.T) {
	cp, db := newTestControlPlaneStore(t)
	if err := db.PutRegister(types.EntityNode, "node-1", types.Register{Value: []byte(`{}`)}); err != nil {
		t.Fatalf("PutRegister() error = %v", err)
	}
	if err := db.PutRegister(types.EntityNode, "node-2", types.Register{Value: []byte(`{}`)}); err != nil {
		t.Fatalf("PutRegister() error = %v", err)
	}

	regs, err := cp.ListRegisters(types.EntityNode)
	if err != nil {
		t.Fatalf("ListRegisters() error = %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("ListRegisters() len = %d, want 2", len(regs))
	}
}
