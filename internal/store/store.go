package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mmcdole/tagflow/internal/domain"
)

var bucketSegments = []byte("segments")

// SnapshotStore implements domain.SnapshotStore using BoltDB.
// Reads are promoted into memory; an empty cache dir keeps everything in memory.
type SnapshotStore struct {
	db     *bolt.DB
	logger *slog.Logger
	mu     sync.RWMutex // Protects memory cache

	cache map[string][]byte
}

// NewSnapshotStore opens (or creates) the snapshot database for serverURL under baseCacheDir
func NewSnapshotStore(baseCacheDir, serverURL string, logger *slog.Logger) (*SnapshotStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if baseCacheDir == "" {
		// Memory-only mode (no persistence)
		return &SnapshotStore{cache: make(map[string][]byte), logger: logger}, nil
	}

	// Segments from different backends never mix
	dir := baseCacheDir
	if serverURL != "" {
		dir = filepath.Join(baseCacheDir, hashServerURL(serverURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "segments.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSegments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SnapshotStore{db: db, cache: make(map[string][]byte), logger: logger}, nil
}

func hashServerURL(serverURL string) string {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func (s *SnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadSegment returns the snapshot stored under key
func (s *SnapshotStore) LoadSegment(key string) (*domain.SegmentSnapshot, bool) {
	data := s.get(key)
	if data == nil {
		return nil, false
	}
	var snap domain.SegmentSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("dropping unreadable segment snapshot", "key", key, "error", err)
		s.DeleteSegment(key)
		return nil, false
	}
	return &snap, true
}

// SaveSegment writes snap under its key
func (s *SnapshotStore) SaveSegment(snap *domain.SegmentSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[snap.Key] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSegments).Put([]byte(snap.Key), data)
	})
}

// DeleteSegment removes one snapshot
func (s *SnapshotStore) DeleteSegment(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSegments).Delete([]byte(key))
	})
}

// DeletePrefix removes every snapshot whose key starts with prefix
func (s *SnapshotStore) DeletePrefix(prefix string) {
	s.DeleteWhere(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

// DeleteWhere removes every snapshot whose key matches pred
func (s *SnapshotStore) DeleteWhere(pred func(key string) bool) {
	s.mu.Lock()
	for k := range s.cache {
		if pred(k) {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSegments)
		var doomed [][]byte
		b.ForEach(func(k, _ []byte) error {
			if pred(string(k)) {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// InvalidateAll removes every snapshot
func (s *SnapshotStore) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string][]byte)
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketSegments); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketSegments)
		return err
	})
}

func (s *SnapshotStore) get(key string) []byte {
	s.mu.RLock()
	if data, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return data
	}
	s.mu.RUnlock()

	if s.db == nil {
		return nil
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSegments).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return nil
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[key] = data
	s.mu.Unlock()
	return data
}

// Ensure SnapshotStore implements the domain interface
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
