package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"collabtext/internal/ot"
)

var (
	bucketEvents    = []byte("events")
	bucketSnapshots = []byte("snapshots")
)

// boltRecord is the msgpack shape of one event. The operation itself stays
// in the wire JSON encoding so every backend shares a single op codec.
type boltRecord struct {
	Version       int    `msgpack:"version"`
	ClientID      string `msgpack:"client_id"`
	ClientVersion int    `msgpack:"client_version"`
	RequestID     string `msgpack:"request_id"`
	Op            []byte `msgpack:"op"`
}

type boltSnapshot struct {
	Content string `msgpack:"content"`
	Version int    `msgpack:"version"`
	LogPos  int64  `msgpack:"log_pos"`
}

// BoltStore is an embedded single-file backend for single-process
// deployments. Each document gets its own sub-bucket of ordered events,
// keyed by the bucket sequence in big-endian form so cursor order is
// replay order.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEvents); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) AppendEvent(_ context.Context, docID string, rec Record) (int64, error) {
	opJSON, err := json.Marshal(rec.Op)
	if err != nil {
		return 0, fmt.Errorf("%w: encode op: %v", ErrAppendFailed, err)
	}
	var pos int64
	err = s.db.Update(func(tx *bolt.Tx) error {
		doc, err := tx.Bucket(bucketEvents).CreateBucketIfNotExists([]byte(docID))
		if err != nil {
			return err
		}
		seq, err := doc.NextSequence()
		if err != nil {
			return err
		}
		val, err := msgpack.Marshal(boltRecord{
			Version:       rec.NewVersion,
			ClientID:      rec.ClientID,
			ClientVersion: rec.ClientVersion,
			RequestID:     rec.RequestID,
			Op:            opJSON,
		})
		if err != nil {
			return err
		}
		pos = int64(seq)
		return doc.Put(seqKey(seq), val)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	return pos, nil
}

func (s *BoltStore) LoadLatestSnapshot(_ context.Context, docID string) (*Snapshot, error) {
	var snap *Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucketSnapshots).Get([]byte(docID))
		if val == nil {
			return nil
		}
		var bs boltSnapshot
		if err := msgpack.Unmarshal(val, &bs); err != nil {
			return err
		}
		snap = &Snapshot{Content: bs.Content, Version: bs.Version, LogPos: bs.LogPos}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

func (s *BoltStore) ReplayEventsSince(_ context.Context, docID string, logPos int64) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		doc := tx.Bucket(bucketEvents).Bucket([]byte(docID))
		if doc == nil {
			return nil
		}
		c := doc.Cursor()
		for k, v := c.Seek(seqKey(uint64(logPos) + 1)); k != nil; k, v = c.Next() {
			var br boltRecord
			if err := msgpack.Unmarshal(v, &br); err != nil {
				return fmt.Errorf("decode record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			var op ot.Operation
			if err := json.Unmarshal(br.Op, &op); err != nil {
				return fmt.Errorf("decode op %d: %w", binary.BigEndian.Uint64(k), err)
			}
			recs = append(recs, Record{
				Op:            op,
				NewVersion:    br.Version,
				ClientID:      br.ClientID,
				ClientVersion: br.ClientVersion,
				RequestID:     br.RequestID,
				LogPos:        int64(binary.BigEndian.Uint64(k)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}
	return recs, nil
}

func (s *BoltStore) SaveSnapshot(_ context.Context, docID string, snap Snapshot) error {
	val, err := msgpack.Marshal(boltSnapshot{Content: snap.Content, Version: snap.Version, LogPos: snap.LogPos})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(docID), val)
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}
