package node

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/formthefog/formation-sub001/pkg/metrics"
	"github.com/formthefog/formation-sub001/pkg/types"
)

type fakeRegisterLister struct {
	regs map[types.EntityKind]map[string]types.Register
}

func (f fakeRegisterLister) ListRegisters(kind types.EntityKind) (map[string]types.Register, error) {
	return f.regs[kind], nil
}

func TestCollectSetsRSEntitiesTotalPerKind(t *testing.T) {
	lister := fakeRegisterLister{regs: map[types.EntityKind]map[string]types.Register{
		types.EntityNode: {
			"n1": {Value: []byte(`{}`)},
			"n2": {Value: []byte(`{}`), Tombstone: true},
			"n3": {Value: []byte(`{}`)},
		},
	}}
	c := NewMetricsCollector(lister, 0)
	c.collect()

	got := testutil.ToFloat64(metrics.RSEntitiesTotal.WithLabelValues(string(types.EntityNode)))
	if got != 2 {
		t.Fatalf("RSEntitiesTotal{node} = %v, want 2 (tombstones excluded)", got)
	}
}
