package store

import (
	"encoding/json"
	"fmt"

	"github.com/kilupskalvis/accmove/internal/models"
	bolt "go.etcd.io/bbolt"
)

// credentialKey is the single slot the Autodesk credential is stored under.
var credentialKey = []byte("autodesk")

// SaveCredential persists the OAuth credential, replacing any previous one.
func (s *Store) SaveCredential(cred *models.Credential) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCredentials)
		if bucket == nil {
			return fmt.Errorf("credentials bucket not found")
		}

		data, err := json.Marshal(cred)
		if err != nil {
			return fmt.Errorf("marshal credential: %w", err)
		}

		return bucket.Put(credentialKey, data)
	})
}

// Credential retrieves the stored credential. Returns (nil, nil) if none is stored.
func (s *Store) Credential() (*models.Credential, error) {
	var cred *models.Credential

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCredentials)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(credentialKey)
		if data == nil {
			return nil
		}

		cred = &models.Credential{}
		return json.Unmarshal(data, cred)
	})

	return cred, err
}

// ClearCredential removes the stored credential, if any.
func (s *Store) ClearCredential() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCredentials)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(credentialKey)
	})
}
