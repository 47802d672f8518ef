package memory

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// recordStorage is the persistence interface for memory records.
type recordStorage interface {
	Store(ctx context.Context, record *MemoryRecord) error
	Get(ctx context.Context, userID, id string) (*MemoryRecord, error)
	Delete(ctx context.Context, userID, id string) error
	AllByUser(ctx context.Context, userID string) ([]*MemoryRecord, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	DeleteByUser(ctx context.Context, userID string) (int, error)
	Close() error
}

// --- L1 LRU cache ---

// L1Cache is an in-memory LRU cache for hot memory records.
type L1Cache struct {
	mu       sync.RWMutex
	maxSize  int
	items    map[string]*list.Element
	eviction *list.List
	hits     int64
	misses   int64
}

type l1Item struct {
	key    string
	record *MemoryRecord
}

// NewL1Cache creates a new L1 LRU cache with the given max size.
func NewL1Cache(maxSize int) *L1Cache {
	return &L1Cache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

func cacheKey(userID, id string) string {
	return userID + ":" + id
}

// Get retrieves a record from the cache, promoting it to the front.
func (c *L1Cache) Get(key string) (*MemoryRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		c.hits++
		return elem.Value.(*l1Item).record, true
	}
	c.misses++
	return nil, false
}

// Put adds or updates a record in the cache.
func (c *L1Cache) Put(key string, record *MemoryRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		elem.Value.(*l1Item).record = record
		return
	}

	if c.eviction.Len() >= c.maxSize {
		c.evictOldest()
	}

	elem := c.eviction.PushFront(&l1Item{key: key, record: record})
	c.items[key] = elem
}

// Delete removes a record from the cache.
func (c *L1Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.Remove(elem)
		delete(c.items, key)
	}
}

// Len returns the number of items in the cache.
func (c *L1Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// HitRate returns the cache hit rate (0.0-1.0) and total accesses.
func (c *L1Cache) HitRate() (rate float64, total int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total = c.hits + c.misses
	if total == 0 {
		return 0, 0
	}
	return float64(c.hits) / float64(total), total
}

func (c *L1Cache) evictOldest() {
	back := c.eviction.Back()
	if back == nil {
		return
	}
	c.eviction.Remove(back)
	delete(c.items, back.Value.(*l1Item).key)
}

// --- L2 Badger storage ---

const recordKeyPrefix = "memory:"

// L2Badger is a Badger-backed persistent storage for memory records.
// Keys are memory:{userID}:{recordID}, so ownership checks fall out of
// the key layout.
type L2Badger struct {
	db *badger.DB
}

// NewL2Badger creates a new L2 Badger storage.
func NewL2Badger(db *badger.DB) *L2Badger {
	return &L2Badger{db: db}
}

func recordKey(userID, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", recordKeyPrefix, userID, id))
}

func userPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", recordKeyPrefix, userID))
}

// Store persists a record.
func (s *L2Badger) Store(ctx context.Context, record *MemoryRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("memory: marshal record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(record.UserID, record.ID), data)
	})
}

// Get retrieves a record. A record owned by a different user is
// indistinguishable from an absent one.
func (s *L2Badger) Get(ctx context.Context, userID, id string) (*MemoryRecord, error) {
	var record MemoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(userID, id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete removes a record. Absent records are not an error.
func (s *L2Badger) Delete(ctx context.Context, userID, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(userID, id))
	})
}

// AllByUser returns every record owned by the user.
func (s *L2Badger) AllByUser(ctx context.Context, userID string) ([]*MemoryRecord, error) {
	var records []*MemoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = userPrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record MemoryRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	return records, err
}

// CountByUser returns the number of records owned by the user.
func (s *L2Badger) CountByUser(ctx context.Context, userID string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = userPrefix(userID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// DeleteByUser removes all records owned by the user, returning the count.
func (s *L2Badger) DeleteByUser(ctx context.Context, userID string) (int, error) {
	count := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = userPrefix(userID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// Close is a no-op since the Badger DB lifecycle is managed externally.
func (s *L2Badger) Close() error {
	return nil
}

// --- Tiered coordinator ---

// TieredStorage coordinates the L1 cache and L2 Badger storage.
type TieredStorage struct {
	l1 *L1Cache
	l2 *L2Badger
}

// NewTieredStorage creates a new tiered storage coordinator.
func NewTieredStorage(l1 *L1Cache, l2 *L2Badger) *TieredStorage {
	return &TieredStorage{l1: l1, l2: l2}
}

// Store writes to L2 (persistent) first, then L1 (cache).
func (t *TieredStorage) Store(ctx context.Context, record *MemoryRecord) error {
	if err := t.l2.Store(ctx, record); err != nil {
		return err
	}
	t.l1.Put(cacheKey(record.UserID, record.ID), record.Clone())
	return nil
}

// Get retrieves from L1 first, then L2 with promotion.
func (t *TieredStorage) Get(ctx context.Context, userID, id string) (*MemoryRecord, error) {
	if record, ok := t.l1.Get(cacheKey(userID, id)); ok {
		return record.Clone(), nil
	}
	record, err := t.l2.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	t.l1.Put(cacheKey(userID, id), record.Clone())
	return record, nil
}

// Delete removes from both tiers.
func (t *TieredStorage) Delete(ctx context.Context, userID, id string) error {
	t.l1.Delete(cacheKey(userID, id))
	return t.l2.Delete(ctx, userID, id)
}

// AllByUser delegates to L2 (L1 is a subset).
func (t *TieredStorage) AllByUser(ctx context.Context, userID string) ([]*MemoryRecord, error) {
	return t.l2.AllByUser(ctx, userID)
}

// CountByUser delegates to L2.
func (t *TieredStorage) CountByUser(ctx context.Context, userID string) (int, error) {
	return t.l2.CountByUser(ctx, userID)
}

// DeleteByUser removes all of a user's records from both tiers.
func (t *TieredStorage) DeleteByUser(ctx context.Context, userID string) (int, error) {
	records, err := t.l2.AllByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		t.l1.Delete(cacheKey(userID, r.ID))
	}
	return t.l2.DeleteByUser(ctx, userID)
}

// Close delegates to L2.
func (t *TieredStorage) Close() error {
	return t.l2.Close()
}

var _ recordStorage = (*TieredStorage)(nil)
