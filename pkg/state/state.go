// Package state implements the embedded ordered KV state store and
// checkpoint manager of §4.7, using go.etcd.io/bbolt the way the
// cuemby-warren/denisvmedia-inventario reference stores do: one
// bucket family per path segment, JSON-framed values, committed in a
// single bbolt.Update transaction for atomicity.
package state

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stratumhq/stratum/pkg/value"
)

var (
	runsBucket = []byte("runs")
)

// Checkpoint is the durable resume point for one MigrationItem.
type Checkpoint struct {
	ItemID      string
	Cursor      value.Cursor
	RowsWritten int64
	UpdatedAt   time.Time
}

// WALEntry records one batch after its destination write succeeded,
// committed in the same transaction as the item's checkpoint (§4.7).
// A crash mid-batch leaves no entry and no checkpoint advance, so the
// batch is re-read and re-written on resume.
type WALEntry struct {
	BatchID   string
	ItemID    string
	Cursor    value.Cursor
	CreatedAt time.Time
}

// Store is the embedded KV state store backing one run.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func runBucketPath(planHash string) []byte { return []byte(planHash) }

// InitRun creates the bucket hierarchy runs/<hash>/meta and
// runs/<hash>/items/<id>/wal for every item, matching §4.7's key
// layout. The checkpoint is the "ckp" key of runs/<hash>/items/<id>,
// written by CommitBatch.
func (s *Store) InitRun(planHash string, itemIDs []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		runs, err := tx.CreateBucketIfNotExists(runsBucket)
		if err != nil {
			return err
		}
		run, err := runs.CreateBucketIfNotExists(runBucketPath(planHash))
		if err != nil {
			return err
		}
		if _, err := run.CreateBucketIfNotExists([]byte("meta")); err != nil {
			return err
		}
		items, err := run.CreateBucketIfNotExists([]byte("items"))
		if err != nil {
			return err
		}
		for _, id := range itemIDs {
			item, err := items.CreateBucketIfNotExists([]byte(id))
			if err != nil {
				return err
			}
			if _, err := item.CreateBucketIfNotExists([]byte("wal")); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) itemBucket(tx *bolt.Tx, planHash, itemID string) (*bolt.Bucket, error) {
	runs := tx.Bucket(runsBucket)
	if runs == nil {
		return nil, fmt.Errorf("state: no run recorded")
	}
	run := runs.Bucket(runBucketPath(planHash))
	if run == nil {
		return nil, fmt.Errorf("state: unknown plan hash %x", planHash)
	}
	items := run.Bucket([]byte("items"))
	if items == nil {
		return nil, fmt.Errorf("state: run has no items bucket")
	}
	item := items.Bucket([]byte(itemID))
	if item == nil {
		return nil, fmt.Errorf("state: unknown item %q", itemID)
	}
	return item, nil
}

// CommitBatch atomically records the WAL entry and advances the
// checkpoint for one successfully-written batch — a single bbolt
// transaction, satisfying §4.7's "commit only if the checkpoint update
// is durably visible together with" requirement for the state store's
// own bookkeeping. The destination write itself is a separate
// database and cannot share this transaction; it must already have
// committed before CommitBatch is called (§4.7's documented
// at-least-once consequence).
func (s *Store) CommitBatch(planHash string, ckp Checkpoint, wal WALEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		item, err := s.itemBucket(tx, planHash, ckp.ItemID)
		if err != nil {
			return err
		}
		ckpBytes, err := json.Marshal(ckp)
		if err != nil {
			return err
		}
		if err := item.Put([]byte("ckp"), ckpBytes); err != nil {
			return err
		}
		walBucket := item.Bucket([]byte("wal"))
		walBytes, err := json.Marshal(wal)
		if err != nil {
			return err
		}
		return walBucket.Put([]byte(wal.BatchID), walBytes)
	})
}

// LoadCheckpoint returns the most recent checkpoint for itemID, or
// false if the item has never made progress.
func (s *Store) LoadCheckpoint(planHash, itemID string) (Checkpoint, bool, error) {
	var ckp Checkpoint
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		item, err := s.itemBucket(tx, planHash, itemID)
		if err != nil {
			return err
		}
		raw := item.Get([]byte("ckp"))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &ckp)
	})
	return ckp, found, err
}
