// Package rtdb is the primary backing store: a hierarchical key space
// persisted in bbolt with push-based subscriptions. Values are msgpack
// encoded. Append operations assign the write timestamp on the store
// side so message ordering never depends on client clocks.
package rtdb

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"neonchat/internal/models"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var bucketTree = []byte("tree")

// Stamped is implemented by records that receive the store-assigned
// write time on append.
type Stamped interface {
	Stamp(ts int64)
}

type Store struct {
	db *bbolt.DB

	mu     sync.Mutex
	pubMu  sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    uint64

	now func() time.Time
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTree)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{
		db:   db,
		subs: make(map[uint64]*Subscription),
		now:  time.Now,
	}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// Put writes the value at path, replacing any existing value.
func (s *Store) Put(path string, v any) error {
	if err := checkPath(path); err != nil {
		return err
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTree).Put([]byte(path), data)
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", path, err)
	}
	s.notify(path)
	return nil
}

// Get reads the value at path into v. Returns models.ErrNotFound if
// nothing is stored there.
func (s *Store) Get(path string, v any) error {
	if err := checkPath(path); err != nil {
		return err
	}
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketTree).Get([]byte(path))
		if raw == nil {
			return models.ErrNotFound
		}
		data = make([]byte, len(raw))
		copy(data, raw)
		return nil
	})
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, v)
}

// Update merges fields into the record at path, creating it if absent.
func (s *Store) Update(path string, fields map[string]any) error {
	if err := checkPath(path); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTree)
		merged := make(map[string]any)
		if raw := b.Get([]byte(path)); raw != nil {
			if err := msgpack.Unmarshal(raw, &merged); err != nil {
				return fmt.Errorf("existing value at %s is not a record: %w", path, err)
			}
		}
		for k, v := range fields {
			merged[k] = v
		}
		data, err := msgpack.Marshal(merged)
		if err != nil {
			return err
		}
		return b.Put([]byte(path), data)
	})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	s.notify(path)
	return nil
}

// Push appends v under path with a store-generated key. Keys embed the
// write time and a sequence number, so the natural key order of a
// collection is its timestamp order. If v implements Stamped it
// receives the same timestamp that went into the key.
func (s *Store) Push(path string, v any) (string, error) {
	if err := checkPath(path); err != nil {
		return "", err
	}

	ts := s.now().UnixMilli()
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	if st, ok := v.(Stamped); ok {
		st.Stamp(ts)
	}

	key := fmt.Sprintf("%013d-%06d", ts, seq%1000000)
	full := path + "/" + key

	data, err := msgpack.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", full, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTree).Put([]byte(full), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to push to %s: %w", path, err)
	}
	s.notify(full)
	return key, nil
}

// Delete removes the record at path and everything below it.
func (s *Store) Delete(path string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTree)
		c := b.Cursor()
		childPrefix := []byte(path + "/")
		var doomed [][]byte
		for k, _ := c.Seek([]byte(path)); k != nil; k, _ = c.Next() {
			if string(k) != path && !strings.HasPrefix(string(k), string(childPrefix)) {
				break
			}
			key := make([]byte, len(k))
			copy(key, k)
			doomed = append(doomed, key)
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	s.notify(path)
	return nil
}

// List returns every record at or below prefix in key order.
func (s *Store) List(prefix string) (Snapshot, error) {
	if err := checkPath(prefix); err != nil {
		return nil, err
	}
	var snap Snapshot
	childPrefix := prefix + "/"
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTree).Cursor()
		for k, v := c.Seek([]byte(prefix)); k != nil; k, v = c.Next() {
			path := string(k)
			if path != prefix && !strings.HasPrefix(path, childPrefix) {
				break
			}
			data := make([]byte, len(v))
			copy(data, v)
			snap = append(snap, Entry{Path: path, data: data})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return snap, nil
}

func checkPath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return fmt.Errorf("invalid path %q", path)
	}
	return nil
}
