package boltstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nfrund/scriptdesk/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketScripts   = []byte("scripts")
	bucketDocuments = []byte("documents")
	bucketJobIndex  = []byte("script_jobs")
)

// DB is an embedded bbolt database holding scripts and their documents.
type DB struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens or creates a bbolt database at path.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketScripts, bucketDocuments, bucketJobIndex} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &DB{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database file lock.
func (d *DB) Close() error {
	return d.db.Close()
}

// Scripts returns the script repository backed by d.
func (d *DB) Scripts() *ScriptStore {
	return &ScriptStore{db: d}
}

// Documents returns the document store backed by d.
func (d *DB) Documents() *DocumentStore {
	return &DocumentStore{db: d}
}

func bucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("bucket %q not found", name)
	}
	return b, nil
}

func getJSON(b *bolt.Bucket, key string, v any) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// wrap turns a bolt failure into a domain error unless it already is one.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != nil {
		return err
	}
	return domain.NewError(domain.ErrPersistence, op, "database operation failed", err)
}
