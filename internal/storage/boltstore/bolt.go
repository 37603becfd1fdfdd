package boltstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"oncepaste/internal/storage"
)

var (
	valueBucket  = []byte("values")
	expireBucket = []byte("expires")
)

// Store implements storage.Engine backed by BoltDB. Each record is the
// big-endian expiry timestamp followed by the raw value.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open initializes a BoltDB-backed store located at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(valueBucket); err != nil {
			return fmt.Errorf("create value bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(expireBucket); err != nil {
			return fmt.Errorf("create expire bucket: %w", err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// SetEx stores value under key, replacing any previous entry.
func (s *Store) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	expiresAt := s.now().Add(ttl)
	record := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(record, toTimestamp(expiresAt))
	copy(record[8:], value)

	return s.db.Update(func(tx *bolt.Tx) error {
		vBucket := tx.Bucket(valueBucket)
		eBucket := tx.Bucket(expireBucket)
		if vBucket == nil || eBucket == nil {
			return errors.New("buckets not initialized")
		}

		if existing := vBucket.Get([]byte(key)); len(existing) >= 8 {
			if err := eBucket.Delete(expireKey(existing[:8], key)); err != nil {
				return fmt.Errorf("remove previous expiry index: %w", err)
			}
		}
		if err := vBucket.Put([]byte(key), record); err != nil {
			return fmt.Errorf("save value: %w", err)
		}
		if err := eBucket.Put(expireKey(record[:8], key), []byte(key)); err != nil {
			return fmt.Errorf("index expiry: %w", err)
		}
		return nil
	})
}

// GetDel returns and removes the value under key inside a single write
// transaction. Expired entries are removed and reported as storage.ErrNil.
func (s *Store) GetDel(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	now := toTimestamp(s.now())
	var (
		out   []byte
		found bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		vBucket := tx.Bucket(valueBucket)
		eBucket := tx.Bucket(expireBucket)
		if vBucket == nil || eBucket == nil {
			return errors.New("buckets not initialized")
		}
		raw := vBucket.Get([]byte(key))
		if raw == nil {
			return storage.ErrNil
		}
		if len(raw) < 8 {
			return errors.New("corrupt record")
		}
		if binary.BigEndian.Uint64(raw[:8]) > now {
			// raw is only valid for the life of the transaction.
			out = append([]byte{}, raw[8:]...)
			found = true
		}
		if err := eBucket.Delete(expireKey(raw[:8], key)); err != nil {
			return fmt.Errorf("delete expiry index: %w", err)
		}
		if err := vBucket.Delete([]byte(key)); err != nil {
			return fmt.Errorf("delete value: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNil
	}
	return out, nil
}

// DeleteExpired removes all entries with expiry before or equal to the provided time.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		vBucket := tx.Bucket(valueBucket)
		eBucket := tx.Bucket(expireBucket)
		if vBucket == nil || eBucket == nil {
			return errors.New("buckets not initialized")
		}

		// Deleting through the cursor while iterating skips entries, so collect first.
		var indexKeys, valueKeys [][]byte
		cursor := eBucket.Cursor()
		cutoff := toTimestamp(before)
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			if binary.BigEndian.Uint64(k[:8]) > cutoff {
				break
			}
			indexKeys = append(indexKeys, append([]byte{}, k...))
			valueKeys = append(valueKeys, append([]byte{}, v...))
		}
		for i := range indexKeys {
			if err := vBucket.Delete(valueKeys[i]); err != nil {
				return fmt.Errorf("delete expired value: %w", err)
			}
			if err := eBucket.Delete(indexKeys[i]); err != nil {
				return fmt.Errorf("delete expiry index: %w", err)
			}
			removed++
		}
		return nil
	})

	return removed, err
}

// Ping reports whether the database is still open.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(valueBucket) == nil {
			return errors.New("value bucket missing")
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func expireKey(ts []byte, key string) []byte {
	k := make([]byte, 8+len(key))
	copy(k, ts[:8])
	copy(k[8:], key)
	return k
}

func toTimestamp(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UTC().UnixNano())
}
