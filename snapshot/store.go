package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/cockroachdb/pebble"
)

// Store persists and retrieves snapshot blobs, content-addressed by the
// sha256 of their full on-wire bytes (header included) so the same heap
// state always lands under the same key regardless of who wrote it.
type Store interface {
	Put(data []byte) (key string, err error)
	Get(key string) ([]byte, error)
	Close() error
}

// ContentKey returns the key Put would store data under, without
// writing anything — useful for a caller checking whether a snapshot it
// is about to take already exists.
func ContentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PebbleStore is the default Store, an on-disk LSM tree. Chosen for the
// same reason the teacher keeps its state database on pebble: snapshot
// blobs are write-once, read-many, and large enough (a whole reachable
// heap) that an LSM's sequential write path beats a B-tree's random one.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (creating if absent) a pebble-backed store at dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening pebble store at %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Put(data []byte) (string, error) {
	key := ContentKey(data)
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return "", err
	}
	return key, nil
}

func (s *PebbleStore) Get(key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, fmt.Errorf("snapshot: no snapshot stored under %s", key)
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// CachedStore wraps a Store with an in-memory fastcache front, for a
// host that reloads the same few snapshots repeatedly (a worker pool
// re-spinning fresh engine instances from one warm-start image, say)
// and would rather skip the disk round trip after the first load.
type CachedStore struct {
	backing Store
	cache   *fastcache.Cache
}

// NewCachedStore wraps backing with an in-memory cache sized maxBytes.
func NewCachedStore(backing Store, maxBytes int) *CachedStore {
	return &CachedStore{backing: backing, cache: fastcache.New(maxBytes)}
}

func (s *CachedStore) Put(data []byte) (string, error) {
	key, err := s.backing.Put(data)
	if err != nil {
		return "", err
	}
	s.cache.Set([]byte(key), data)
	return key, nil
}

func (s *CachedStore) Get(key string) ([]byte, error) {
	if v, ok := s.cache.HasGet(nil, []byte(key)); ok {
		return v, nil
	}
	data, err := s.backing.Get(key)
	if err != nil {
		return nil, err
	}
	s.cache.Set([]byte(key), data)
	return data, nil
}

func (s *CachedStore) Close() error { return s.backing.Close() }
