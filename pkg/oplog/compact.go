package oplog

import (
	"fmt"
	"io"
	"os"

	"github.com/formthefog/formation-sub001/pkg/oplog/wire"
)

// compact rewrites the segment into a new epoch containing only records
// with seq > watermark, then removes any epoch older than the new one's
// immediate predecessor (spec.md §6: "most recent + one prior kept").
func (s *segment) compact(watermark uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.readAfterLocked(watermark, 0)
	if err != nil {
		return fmt.Errorf("read live tail for compaction: %w", err)
	}

	newEpoch := s.epoch + 1
	newPath := s.epochPath(newEpoch)
	f, err := os.OpenFile(newPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create compacted epoch %d: %w", newEpoch, err)
	}

	var index []indexEntry
	for _, rec := range live {
		pos, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return err
		}
		if err := rec.toFrame(s.topicID).Encode(f); err != nil {
			f.Close()
			return fmt.Errorf("write compacted record seq %d: %w", rec.Seq, err)
		}
		index = append(index, indexEntry{seq: rec.Seq, offset: pos})
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync compacted epoch: %w", err)
	}

	oldFile := s.file
	oldEpoch := s.epoch

	s.file = f
	s.epoch = newEpoch
	s.index = index

	oldFile.Close()
	if oldEpoch > 0 {
		os.Remove(s.epochPath(oldEpoch - 1))
	}

	return nil
}

// readAfterLocked is readAfter's body, callable while s.mu is already
// held (compact calls it from inside its own critical section).
func (s *segment) readAfterLocked(after uint64, n int) ([]Record, error) {
	start := 0
	for start < len(s.index) && s.index[start].seq <= after {
		start++
	}
	if start >= len(s.index) {
		return nil, nil
	}
	if _, err := s.file.Seek(s.index[start].offset, 0); err != nil {
		return nil, fmt.Errorf("seek segment: %w", err)
	}
	var out []Record
	for i := start; i < len(s.index); i++ {
		if n > 0 && len(out) >= n {
			break
		}
		frame, err := wire.Decode(s.file)
		if err != nil {
			return out, err
		}
		out = append(out, recordFromFrame(s.topic, frame))
	}
	return out, nil
}
