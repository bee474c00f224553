package oplog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/formthefog/formation-sub001/pkg/oplog/wire"
)

// segment is one topic's on-disk append log: a single epoch file holding
// wire-framed records in seq order, fsynced after every append
// (spec.md §3.3's OL durability invariant, §6's persisted-state layout
// "<data_dir>/log/<topic>/<epoch>.log").
type segment struct {
	mu      sync.Mutex
	dir     string
	topic   string
	topicID uint16
	epoch   uint64
	file    *os.File
	nextSeq uint64
	index   []indexEntry
}

type indexEntry struct {
	seq    uint64
	offset int64
}

func openSegment(dataDir, topic string, topicID uint16) (*segment, error) {
	dir := filepath.Join(dataDir, "log", topic)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir for topic %s: %w", topic, err)
	}

	epoch, err := latestEpoch(dir)
	if err != nil {
		return nil, err
	}

	s := &segment{dir: dir, topic: topic, topicID: topicID, epoch: epoch}
	if err := s.openEpochFile(); err != nil {
		return nil, err
	}
	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func latestEpoch(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("list segment dir: %w", err)
	}
	var epochs []uint64
	for _, e := range entries {
		var epoch uint64
		if _, err := fmt.Sscanf(e.Name(), "%d.log", &epoch); err == nil {
			epochs = append(epochs, epoch)
		}
	}
	if len(epochs) == 0 {
		return 0, nil
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
	return epochs[len(epochs)-1], nil
}

func (s *segment) epochPath(epoch uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.log", epoch))
}

func (s *segment) openEpochFile() error {
	f, err := os.OpenFile(s.epochPath(s.epoch), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open segment epoch %d for topic %s: %w", s.epoch, s.topic, err)
	}
	s.file = f
	return nil
}

// rebuildIndex scans the current epoch file once at open, recording each
// record's seq and the reader position, so read_after can seek without a
// second on-disk index structure.
func (s *segment) rebuildIndex() error {
	if _, err := s.file.Seek(0, 0); err != nil {
		return err
	}
	var offset int64
	for {
		f, err := wire.Decode(s.file)
		if err != nil {
			break // EOF or a truncated trailing record (crash mid-append)
		}
		s.index = append(s.index, indexEntry{seq: f.Seq, offset: offset})
		if f.Seq >= s.nextSeq {
			s.nextSeq = f.Seq + 1
		}
		pos, err := s.file.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		offset = pos
	}
	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return nil
}

// append writes rec to the end of the segment and fsyncs before
// returning, assigning it the next sequence number.
func (s *segment) append(rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Topic = s.topic
	rec.Seq = s.nextSeq

	f := rec.toFrame(s.topicID)
	pos, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return Record{}, fmt.Errorf("seek segment: %w", err)
	}
	if err := f.Encode(s.file); err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return Record{}, fmt.Errorf("fsync segment: %w", err)
	}

	s.index = append(s.index, indexEntry{seq: rec.Seq, offset: pos})
	s.nextSeq++
	return rec, nil
}

// readAfter returns every record with seq > after, in order, reading up
// to n records if n > 0.
func (s *segment) readAfter(after uint64, n int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.readAfterLocked(after, n)
	if _, seekErr := s.file.Seek(0, io.SeekEnd); err == nil && seekErr != nil {
		return out, seekErr
	}
	return out, err
}

// latestSeq returns the sequence number of the most recently appended
// record, or 0 if the segment is empty.
func (s *segment) latestSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextSeq == 0 {
		return 0
	}
	return s.nextSeq - 1
}

func (s *segment) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
