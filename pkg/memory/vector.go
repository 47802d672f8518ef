package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"
	"time"
)

// Entry is a vector index entry. Entries are 1:1 with live memory
// records and are deleted together with them.
type Entry struct {
	EmbeddingID string
	UserID      string
	MemoryID    string
	Vector      []float32
	CreatedAt   time.Time
}

// Hit is a single retrieval result. Distance is 1 - cosine similarity,
// so smaller is closer.
type Hit struct {
	MemoryID    string
	EmbeddingID string
	Distance    float64
}

// Index is the vector retrieval interface. Queries are user-scoped:
// returning another user's entries is a correctness bug, not a tuning
// problem.
type Index interface {
	Upsert(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, embeddingID string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
	Query(ctx context.Context, userID string, vector []float32, k int) ([]Hit, error)
	Len() int
}

// InMemoryIndex is a brute-force cosine index. Fine for the per-user
// collection sizes this service sees; swap in the chromem backend via
// config when persistence across restarts matters more than snapshots.
type InMemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]Entry // embeddingID -> entry
}

// NewInMemoryIndex creates an index with the given dimension.
func NewInMemoryIndex(dimension int) *InMemoryIndex {
	return &InMemoryIndex{
		dimension: dimension,
		entries:   make(map[string]Entry),
	}
}

// Upsert adds or replaces an entry.
func (idx *InMemoryIndex) Upsert(ctx context.Context, entry Entry) error {
	if len(entry.Vector) != idx.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, idx.dimension, len(entry.Vector))
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[entry.EmbeddingID] = entry
	return nil
}

// Delete removes an entry. Deleting an absent entry is a no-op.
func (idx *InMemoryIndex) Delete(ctx context.Context, embeddingID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, embeddingID)
	return nil
}

// DeleteByUser removes every entry owned by userID.
func (idx *InMemoryIndex) DeleteByUser(ctx context.Context, userID string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	count := 0
	for id, e := range idx.entries {
		if e.UserID == userID {
			delete(idx.entries, id)
			count++
		}
	}
	return count, nil
}

// Query returns up to k hits for the user, ascending by distance.
// Equal distances are broken by recency, newest entry first.
func (idx *InMemoryIndex) Query(ctx context.Context, userID string, vector []float32, k int) ([]Hit, error) {
	if len(vector) != idx.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, idx.dimension, len(vector))
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		entry    Entry
		distance float64
	}

	var results []scored
	for _, e := range idx.entries {
		if e.UserID != userID {
			continue
		}
		results = append(results, scored{
			entry:    e,
			distance: 1 - cosineSimilarity(vector, e.Vector),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].distance != results[j].distance {
			return results[i].distance < results[j].distance
		}
		return results[i].entry.CreatedAt.After(results[j].entry.CreatedAt)
	})

	if k > len(results) {
		k = len(results)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{
			MemoryID:    results[i].entry.MemoryID,
			EmbeddingID: results[i].entry.EmbeddingID,
			Distance:    results[i].distance,
		}
	}
	return hits, nil
}

// Len returns the number of entries in the index.
func (idx *InMemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Save persists the index to a file.
// Format: [dimension:uint32][count:uint32] then for each entry:
// [idLen:uint16][id][uidLen:uint16][uid][midLen:uint16][mid]
// [createdAt:int64 unix nano][vector:float32*dim]
func (idx *InMemoryIndex) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vector: save failed: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint32(idx.dimension)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(idx.entries))); err != nil {
		return err
	}

	for _, e := range idx.entries {
		for _, s := range []string{e.EmbeddingID, e.UserID, e.MemoryID} {
			if err := binary.Write(f, binary.LittleEndian, uint16(len(s))); err != nil {
				return err
			}
			if _, err := f.Write([]byte(s)); err != nil {
				return err
			}
		}
		if err := binary.Write(f, binary.LittleEndian, e.CreatedAt.UnixNano()); err != nil {
			return err
		}
		if err := binary.Write(f, binary.LittleEndian, e.Vector); err != nil {
			return err
		}
	}
	return nil
}

// Load restores the index from a file written by Save.
func (idx *InMemoryIndex) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vector: load failed: %w", err)
	}
	defer f.Close()

	var dim, count uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return err
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return err
	}

	if int(dim) != idx.dimension {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dim, idx.dimension)
	}

	readString := func() (string, error) {
		var n uint16
		if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
			return "", err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(f, buf); err != nil {
			return "", err
		}
		return string(buf), nil
	}

	entries := make(map[string]Entry, count)
	for i := uint32(0); i < count; i++ {
		var e Entry
		if e.EmbeddingID, err = readString(); err != nil {
			return err
		}
		if e.UserID, err = readString(); err != nil {
			return err
		}
		if e.MemoryID, err = readString(); err != nil {
			return err
		}
		var nanos int64
		if err := binary.Read(f, binary.LittleEndian, &nanos); err != nil {
			return err
		}
		e.CreatedAt = time.Unix(0, nanos)
		e.Vector = make([]float32, dim)
		if err := binary.Read(f, binary.LittleEndian, e.Vector); err != nil {
			return err
		}
		entries[e.EmbeddingID] = e
	}

	idx.entries = entries
	return nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a []float32, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dotProduct / denom
}
