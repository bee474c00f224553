package types

import "fmt"

// HybridClock is the (wall_ms, counter) pair spec.md §4.1 pins the system's
// ordering to, resolving Open Question #2 ("logical" vs "timestamped")
// in favor of a hybrid logical clock. The clock carries no actor;
// Register.Dominates breaks ties between equal (WallMS, Counter) pairs
// from different actors by address (spec.md §3.3, §8 boundary case).
type HybridClock struct {
	WallMS  int64
	Counter uint32
}

// Compare returns -1, 0, or 1 comparing c to other, lexicographically on
// (WallMS, Counter). It does not consider actor; callers needing the full
// tie-break order should use Register.Dominates.
func (c HybridClock) Compare(other HybridClock) int {
	switch {
	case c.WallMS < other.WallMS:
		return -1
	case c.WallMS > other.WallMS:
		return 1
	case c.Counter < other.Counter:
		return -1
	case c.Counter > other.Counter:
		return 1
	default:
		return 0
	}
}

func (c HybridClock) String() string {
	return fmt.Sprintf("%d.%d", c.WallMS, c.Counter)
}

// Tick advances c to reflect a new local event, observing an optional
// remote wall-clock reading per spec.md §4.1:
// clock = (max(local_wall, observed_wall)+1, actor).
// If the resulting wall_ms matches the previous wall_ms the counter is
// incremented instead of reset, so repeated ticks within the same
// millisecond still produce a monotone sequence.
func (c HybridClock) Tick(localWallMS, observedWallMS int64) HybridClock {
	wall := localWallMS
	if observedWallMS > wall {
		wall = observedWallMS
	}
	wall++
	if wall <= c.WallMS {
		return HybridClock{WallMS: c.WallMS, Counter: c.Counter + 1}
	}
	return HybridClock{WallMS: wall, Counter: 0}
}
