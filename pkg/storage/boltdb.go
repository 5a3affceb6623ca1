package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/stevedore/pkg/security"
	"github.com/cuemby/stevedore/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Top-level buckets; each holds one nested bucket per cluster
	bucketRuns    = []byte("runs")
	bucketSecrets = []byte("secrets")
)

// DBFile is the database file name inside the state directory
const DBFile = "stevedore.db"

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DBFile)

	// A second CLI invocation holding the lock fails fast instead of hanging
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketSecrets} {
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

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// clusterBucket returns the nested bucket for cluster, creating it in write
// transactions. Read transactions get nil when it does not exist yet.
func clusterBucket(tx *bolt.Tx, top []byte, cluster string) (*bolt.Bucket, error) {
	parent := tx.Bucket(top)
	if !tx.Writable() {
		return parent.Bucket([]byte(cluster)), nil
	}
	return parent.CreateBucketIfNotExists([]byte(cluster))
}

// runKey orders runs chronologically under bolt's byte-sorted cursor
func runKey(run *types.RunRecord) []byte {
	return []byte(run.StartedAt.UTC().Format("20060102T150405.000000000Z") + "-" + run.ID)
}

// Run operations
func (s *BoltStore) SaveRun(run *types.RunRecord) error {
	if run.ID == "" || run.Cluster == "" {
		return fmt.Errorf("run record needs an id and a cluster")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := clusterBucket(tx, bucketRuns, run.Cluster)
		if err != nil {
			return err
		}
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put(runKey(run), data)
	})
}

func (s *BoltStore) GetRun(cluster, id string) (*types.RunRecord, error) {
	var found *types.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := clusterBucket(tx, bucketRuns, cluster)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var run types.RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if run.ID == id {
				found = &run
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return found, nil
}

// ListRuns returns the cluster's runs, newest first. limit <= 0 returns all.
func (s *BoltStore) ListRuns(cluster string, limit int) ([]*types.RunRecord, error) {
	var runs []*types.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := clusterBucket(tx, bucketRuns, cluster)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var run types.RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, &run)
		}
		return nil
	})
	return runs, err
}

func (s *BoltStore) DeleteRuns(cluster string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketRuns).DeleteBucket([]byte(cluster))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

// Secret operations
func (s *BoltStore) PutSecret(secret *types.Secret) error {
	if secret.Cluster == "" || secret.Name == "" {
		return fmt.Errorf("secret needs a cluster and a name")
	}
	if secret.ID == "" {
		secret.ID = security.SecretID(secret.Cluster, secret.Name)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := clusterBucket(tx, bucketSecrets, secret.Cluster)
		if err != nil {
			return err
		}
		data, err := json.Marshal(secret)
		if err != nil {
			return err
		}
		return b.Put([]byte(secret.Name), data)
	})
}

func (s *BoltStore) GetSecret(cluster, name string) (*types.Secret, error) {
	var secret types.Secret
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := clusterBucket(tx, bucketSecrets, cluster)
		if b == nil {
			return fmt.Errorf("secret %s: %w", name, ErrNotFound)
		}
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("secret %s: %w", name, ErrNotFound)
		}
		return json.Unmarshal(data, &secret)
	})
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

func (s *BoltStore) ListSecrets(cluster string) ([]*types.Secret, error) {
	var secrets []*types.Secret
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := clusterBucket(tx, bucketSecrets, cluster)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var secret types.Secret
			if err := json.Unmarshal(v, &secret); err != nil {
				return err
			}
			secrets = append(secrets, &secret)
			return nil
		})
	})
	return secrets, err
}

func (s *BoltStore) DeleteSecret(cluster, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := clusterBucket(tx, bucketSecrets, cluster)
		if err != nil {
			return err
		}
		return b.Delete([]byte(name))
	})
}

// Backup writes a consistent copy of the database to path
func (s *BoltStore) Backup(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}
