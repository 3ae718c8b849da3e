package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	bolt "go.etcd.io/bbolt"
)

var keysBucket = []byte("keys")

// BoltStore persists key pairs in a bbolt file, one JSON value per name.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("Failed to open key store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(keysBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) Put(ctx context.Context, name string, keys Keys) error {
	if name == "" {
		return ErrInvalidName
	}

	if err := keys.Validate(); err != nil {
		return err
	}

	raw, err := encodeKeys(keys)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(keysBucket).Put([]byte(name), raw)
	})
}

func (b *BoltStore) Get(ctx context.Context, name string) (keys Keys, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(keysBucket).Get([]byte(name))
		if raw == nil {
			return ErrNotFound
		}

		keys = decodeKeys(gjson.ParseBytes(raw))

		return nil
	})

	return keys, err
}

func (b *BoltStore) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0)

	err := b.db.View(func(tx *bolt.Tx) error {
		// Keys are iterated in byte order
		return tx.Bucket(keysBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})

	return names, err
}

// Restore replaces every stored key pair with the ones in values.
func (b *BoltStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) || !gjson.ParseBytes(values).IsObject() {
		return ErrInvalidBackup
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(keysBucket); err != nil {
			return err
		}

		bucket, err := tx.CreateBucket(keysBucket)
		if err != nil {
			return err
		}

		gjson.ParseBytes(values).ForEach(func(key, value gjson.Result) bool {
			err = bucket.Put([]byte(key.String()), []byte(value.Raw))
			return err == nil
		})

		return err
	})
}

func (b *BoltStore) Backup() ([]byte, error) {
	doc := []byte("{}")

	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(keysBucket).ForEach(func(k, v []byte) (err error) {
			doc, err = sjson.SetRawBytes(doc, escapePath(string(k)), v)
			return err
		})
	})

	return doc, err
}

var _ Store = (*BoltStore)(nil)
