package statestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("state")

// BoltStore is a single-process Shared State Store backend for development
// and tests that don't want a Redis dependency (grounded on the teacher's
// BoltDB-backed Store implementation, adapted from bucket-per-entity-type to
// a single flat keyspace matching statestore.Store's generic key contract).
// bbolt has no native TTL, so each record is prefixed with an 8-byte
// big-endian unix-nano expiry (0 meaning no expiry).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a BoltDB file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func encodeRecord(expiresAt time.Time, value []byte) []byte {
	var nanos int64
	if !expiresAt.IsZero() {
		nanos = expiresAt.UnixNano()
	}
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(nanos))
	copy(buf[8:], value)
	return buf
}

func decodeRecord(raw []byte) (expiresAt time.Time, value []byte) {
	nanos := int64(binary.BigEndian.Uint64(raw[:8]))
	if nanos != 0 {
		expiresAt = time.Unix(0, nanos)
	}
	value = raw[8:]
	return
}

func (b *BoltStore) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(stateBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		expiresAt, v := decodeRecord(raw)
		if !expiresAt.IsZero() && time.Now().After(expiresAt) {
			return ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	return value, err
}

func (b *BoltStore) Put(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put([]byte(key), encodeRecord(time.Time{}, value))
	})
}

func (b *BoltStore) PutWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put([]byte(key), encodeRecord(time.Now().Add(ttl), value))
	})
}

func (b *BoltStore) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stateBucket)
		raw := bucket.Get([]byte(key))
		if raw != nil {
			expiresAt, _ := decodeRecord(raw)
			if expiresAt.IsZero() || time.Now().Before(expiresAt) {
				return ErrAlreadyExists
			}
		}
		var expiresAt time.Time
		if ttl > 0 {
			expiresAt = time.Now().Add(ttl)
		}
		return bucket.Put([]byte(key), encodeRecord(expiresAt, value))
	})
}

func (b *BoltStore) CompareAndSwap(_ context.Context, key string, oldValue, newValue []byte, ttl time.Duration) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stateBucket)
		raw := bucket.Get([]byte(key))

		var current []byte
		exists := false
		if raw != nil {
			expiresAt, v := decodeRecord(raw)
			if expiresAt.IsZero() || time.Now().Before(expiresAt) {
				current = v
				exists = true
			}
		}

		if oldValue == nil {
			if exists {
				return ErrCASMismatch
			}
		} else if !exists || !bytes.Equal(current, oldValue) {
			return ErrCASMismatch
		}

		var expiresAt time.Time
		if ttl > 0 {
			expiresAt = time.Now().Add(ttl)
		}
		return bucket.Put([]byte(key), encodeRecord(expiresAt, newValue))
	})
}

func (b *BoltStore) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Delete([]byte(key))
	})
}

func (b *BoltStore) ListByPrefix(_ context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	now := time.Now()
	err := b.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(stateBucket).Cursor()
		prefixBytes := []byte(prefix)
		for k, raw := cursor.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, raw = cursor.Next() {
			expiresAt, v := decodeRecord(raw)
			if !expiresAt.IsZero() && now.After(expiresAt) {
				continue
			}
			out[string(k)] = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (b *BoltStore) RemainingTTL(_ context.Context, key string) (time.Duration, error) {
	var remaining time.Duration
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(stateBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		expiresAt, _ := decodeRecord(raw)
		if expiresAt.IsZero() {
			remaining = -1
			return nil
		}
		if time.Now().After(expiresAt) {
			return ErrNotFound
		}
		remaining = time.Until(expiresAt)
		return nil
	})
	return remaining, err
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
