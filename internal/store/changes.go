package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/kilupskalvis/accmove/internal/models"
	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// changeKey returns the bucket key for a pending change.
// Keyed by element id so a re-recorded move overwrites its predecessor.
func changeKey(elementID int64) []byte {
	return []byte(strconv.FormatInt(elementID, 10))
}

// ReplacePendingChanges persists the given set of pending moves, discarding
// whatever was stored before.
func (s *Store) ReplacePendingChanges(changes []*models.PendingChange) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketPendingMoves); err != nil && err != berrors.ErrBucketNotFound {
			return fmt.Errorf("delete pending moves bucket: %w", err)
		}

		bucket, err := tx.CreateBucketIfNotExists(bucketPendingMoves)
		if err != nil {
			return fmt.Errorf("recreate pending moves bucket: %w", err)
		}

		for _, change := range changes {
			data, err := json.Marshal(change)
			if err != nil {
				return fmt.Errorf("marshal pending change: %w", err)
			}
			if err := bucket.Put(changeKey(change.ElementID), data); err != nil {
				return fmt.Errorf("store pending change: %w", err)
			}
		}

		return nil
	})
}

// PendingChanges retrieves all pending moves, sorted by when they were first
// recorded.
func (s *Store) PendingChanges() ([]*models.PendingChange, error) {
	var changes []*models.PendingChange

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketPendingMoves)
		if bucket == nil {
			return nil
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			change := &models.PendingChange{}
			if err := json.Unmarshal(v, change); err != nil {
				return fmt.Errorf("unmarshal pending change: %w", err)
			}
			changes = append(changes, change)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].RecordedAt.Equal(changes[j].RecordedAt) {
			return changes[i].ElementID < changes[j].ElementID
		}
		return changes[i].RecordedAt.Before(changes[j].RecordedAt)
	})

	return changes, nil
}

// ClearPendingChanges removes all pending moves from the store.
func (s *Store) ClearPendingChanges() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketPendingMoves); err != nil && err != berrors.ErrBucketNotFound {
			return fmt.Errorf("delete pending moves bucket: %w", err)
		}

		if _, err := tx.CreateBucketIfNotExists(bucketPendingMoves); err != nil {
			return fmt.Errorf("recreate pending moves bucket: %w", err)
		}

		return nil
	})
}

// PendingCount returns the number of pending moves.
func (s *Store) PendingCount() (int, error) {
	var count int

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketPendingMoves)
		if bucket == nil {
			return nil
		}
		count = bucket.Stats().KeyN
		return nil
	})

	return count, err
}
