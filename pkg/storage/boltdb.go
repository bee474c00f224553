package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/formthefog/formation-sub001/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketAccounts   = []byte("accounts")
	bucketInstances  = []byte("instances")
	bucketNodes      = []byte("nodes")
	bucketDNSRecords = []byte("dns_records")
	bucketCIDRs      = []byte("cidrs")
	bucketPeers      = []byte("peers")
	bucketWatermarks = []byte("watermarks")
)

func bucketForKind(kind types.EntityKind) ([]byte, error) {
	switch kind {
	case types.EntityAccount:
		return bucketAccounts, nil
	case types.EntityInstance:
		return bucketInstances, nil
	case types.EntityNode:
		return bucketNodes, nil
	case types.EntityDNSRecord:
		return bucketDNSRecords, nil
	case types.EntityCIDR:
		return bucketCIDRs, nil
	case types.EntityPeer:
		return bucketPeers, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

// BoltStore implements Store using a single bbolt database file, one bucket
// per EntityKind plus a watermark bucket (spec.md §3.2, §9).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the BoltDB file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "formation.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketAccounts,
			bucketInstances,
			bucketNodes,
			bucketDNSRecords,
			bucketCIDRs,
			bucketPeers,
			bucketWatermarks,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutRegister upserts the register for (kind, key). Callers are expected to
// have already resolved CRDT ordering (types.Register.Dominates) before
// calling this — BoltStore performs no merge logic of its own.
func (s *BoltStore) PutRegister(kind types.EntityKind, key string, reg types.Register) error {
	bucketName, err := bucketForKind(kind)
	if err != nil {
		return err
	}
	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal register: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
}

// GetRegister fetches the register for (kind, key). The second return value
// is false if no register exists at that key, including for tombstoned
// keys that have been garbage collected.
func (s *BoltStore) GetRegister(kind types.EntityKind, key string) (types.Register, bool, error) {
	bucketName, err := bucketForKind(kind)
	if err != nil {
		return types.Register{}, false, err
	}
	var reg types.Register
	found := false
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &reg)
	})
	return reg, found, err
}

// ListRegisters returns every register of kind, including tombstoned ones;
// callers that want live entities only must filter on Register.Tombstone.
func (s *BoltStore) ListRegisters(kind types.EntityKind) (map[string]types.Register, error) {
	bucketName, err := bucketForKind(kind)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.Register)
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
			var reg types.Register
			if err := json.Unmarshal(v, &reg); err != nil {
				return fmt.Errorf("unmarshal register %s/%s: %w", kind, k, err)
			}
			out[string(k)] = reg
			return nil
		})
	})
	return out, err
}

// DeleteRegister hard-deletes the stored entry for (kind, key). This is
// reserved for tombstone garbage collection (spec.md §9 Open Question #1);
// ordinary deletes are expressed as a tombstoned PutRegister so the delete
// itself can replicate as a CRDT write.
func (s *BoltStore) DeleteRegister(kind types.EntityKind, key string) error {
	bucketName, err := bucketForKind(kind)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

// GetWatermark returns the highest Operation Log sequence number compacted
// into topic's latest snapshot epoch. Returns 0 if never set.
func (s *BoltStore) GetWatermark(topic string) (uint64, error) {
	var seq uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketWatermarks).Get([]byte(topic))
		if data == nil {
			return nil
		}
		seq = binary.BigEndian.Uint64(data)
		return nil
	})
	return seq, err
}

// SetWatermark records topic's newly committed compaction sequence number.
func (s *BoltStore) SetWatermark(topic string, seq uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWatermarks).Put([]byte(topic), buf)
	})
}
