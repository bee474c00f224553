package rs

import (
	"sync"
	"time"

	"github.com/formthefog/formation-sub001/pkg/types"
)

// clockSource returns the current wall-clock time in milliseconds. Tests
// substitute a deterministic source; production uses time.Now.
type clockSource func() int64

func systemClock() int64 { return time.Now().UnixMilli() }

// hlc tracks RS's locally-assigned HybridClock, advancing it both for
// local writes and on observing remote clocks, so the node never assigns
// a clock a correct peer could have already produced (spec.md §4.1:
// "clock = (max(local_wall, observed_wall)+1, actor)").
type hlc struct {
	mu    sync.Mutex
	last  types.HybridClock
	now   clockSource
	actor types.Address
}

func newHLC(actor types.Address, now clockSource) *hlc {
	if now == nil {
		now = systemClock
	}
	return &hlc{now: now, actor: actor}
}

// next assigns a clock for a local event.
func (h *hlc) next() types.HybridClock {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = h.last.Tick(h.now(), 0)
	return h.last
}

// observe advances the clock's causal frontier past a remote clock
// without assigning a new value for any write of our own.
func (h *hlc) observe(remote types.HybridClock) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if remote.Compare(h.last) > 0 {
		h.last = remote
	}
}
