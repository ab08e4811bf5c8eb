package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Hexploration-Inc/orai/internal/types"
)

var bodiesBucket = []byte("bodies")

// BoltStore keeps bodies in a single local bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", path, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bodiesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize blob store: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bodiesBucket).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", types.ErrStorage, key, err)
	}
	return nil
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bodiesBucket).Get([]byte(key))
		if v == nil {
			return types.ErrNotFound
		}
		// v is only valid inside the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	if errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", types.ErrStorage, key, err)
	}
	return out, nil
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bodiesBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", types.ErrStorage, key, err)
	}
	return nil
}

// Close closes the bbolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
