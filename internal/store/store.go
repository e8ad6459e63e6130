package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hismailbulut/vimim/internal/types"
	"github.com/hismailbulut/vimim/pkg/logger"
)

var (
	bucketIMCache = []byte("im_cache")
	bucketHistory = []byte("history")
	keyIMCache    = []byte("cache")
)

const defaultLimit = 500

// Store persists the input method cache and the command history.
type Store struct {
	db    *bolt.DB
	limit int
}

func Open(path string, limit int) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("state db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Store{db: db, limit: limit}, nil
}

func initSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketIMCache, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveCache(ctx context.Context, cache types.IMCache) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIMCache).Put(keyIMCache, data)
	})
}

// LoadCache returns an empty cache when nothing was saved yet.
func (s *Store) LoadCache(ctx context.Context) (types.IMCache, error) {
	var cache types.IMCache
	if err := ctx.Err(); err != nil {
		return cache, err
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketIMCache).Get(keyIMCache)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &cache)
	})
	return cache, err
}

// Append stores rec and prunes the oldest records beyond the limit.
func (s *Store) Append(ctx context.Context, rec types.CommandRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketHistory)
		id, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		if err := bucket.Put(itob(id), data); err != nil {
			return err
		}
		c := bucket.Cursor()
		count := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		excess := count - s.limit
		if excess <= 0 {
			return nil
		}
		// Keys are big endian sequence numbers, the first ones are the oldest
		var stale [][]byte
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, append([]byte{}, k...))
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]types.CommandRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []types.CommandRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Last(); k != nil && (n <= 0 || len(out) < n); k, v = c.Prev() {
			var rec types.CommandRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Record implements switcher.Recorder. Errors are logged only.
func (s *Store) Record(rec types.CommandRecord) {
	if err := s.Append(context.Background(), rec); err != nil {
		logger.Log(logger.ERROR, "Failed to record command:", err)
	}
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
