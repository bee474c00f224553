package rs

import "github.com/formthefog/formation-sub001/pkg/events"

// GCTombstones deletes tombstoned registers whose clock wall time is
// below minWallMS and returns how many it deleted. It reads no Operation
// Log watermark itself; the cutoff is whatever the caller passes, and no
// package in this module calls it.
func (s *Store) GCTombstones(minWallMS int64) (int, error) {
	collected := 0
	for _, kind := range allKinds {
		lock := s.lockFor(kind)
		lock.Lock()
		regs, err := s.db.ListRegisters(kind)
		if err != nil {
			lock.Unlock()
			return collected, err
		}
		for key, reg := range regs {
			if !reg.Tombstone || reg.Clock.WallMS >= minWallMS {
				continue
			}
			if err := s.db.DeleteRegister(kind, key); err != nil {
				lock.Unlock()
				return collected, err
			}
			collected++
			s.events.Publish(&events.Event{
				Type:    events.EventTombstoneGCed,
				Message: "tombstone garbage collected",
				Metadata: map[string]string{
					"kind": string(kind),
					"key":  key,
				},
			})
		}
		lock.Unlock()
	}
	return collected, nil
}
