package node

import (
	"encoding/json"

	"github.com/formthefog/formation-sub001/pkg/rs"
	"github.com/formthefog/formation-sub001/pkg/storage"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// controlPlaneStore composes *rs.Store's signed read/write path with the
// underlying storage.Store's enumeration, giving a single value that
// satisfies pkg/api.Store, pkg/reconciler.Store, and pkg/health.RSWriter
// without any of those packages depending on pkg/rs's full surface
// (MergeRemote, Snapshot, IngestSnapshot stay internal to fan-out/bootstrap
// wiring, which owns *rs.Store directly).
type controlPlaneStore struct {
	rs *rs.Store
	db storage.Store
}

func (c controlPlaneStore) Read(kind types.EntityKind, key string) (json.RawMessage, bool, error) {
	return c.rs.Read(kind, key)
}

func (c controlPlaneStore) ApplyLocal(op rs.SignedOp) (rs.Delta, error) {
	return c.rs.ApplyLocal(op)
}

func (c controlPlaneStore) ListRegisters(kind types.EntityKind) (map[string]types.Register, error) {
	return c.db.ListRegisters(kind)
}
