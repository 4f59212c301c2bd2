package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilupskalvis/accmove/internal/models"
	bolt "go.etcd.io/bbolt"
)

// contextKey is the single slot the work context is stored under.
var contextKey = []byte("current")

// SetWorkContext persists the active hub/project/folder/item selection.
func (s *Store) SetWorkContext(wc *models.WorkContext) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketContext)
		if bucket == nil {
			return fmt.Errorf("context bucket not found")
		}

		wc.UpdatedAt = time.Now()
		data, err := json.Marshal(wc)
		if err != nil {
			return fmt.Errorf("marshal work context: %w", err)
		}

		return bucket.Put(contextKey, data)
	})
}

// WorkContext retrieves the active selection. Returns (nil, nil) if none is set.
func (s *Store) WorkContext() (*models.WorkContext, error) {
	var wc *models.WorkContext

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketContext)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(contextKey)
		if data == nil {
			return nil
		}

		wc = &models.WorkContext{}
		return json.Unmarshal(data, wc)
	})

	return wc, err
}

// ClearWorkContext removes the active selection.
func (s *Store) ClearWorkContext() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketContext)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(contextKey)
	})
}
