package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex backs the vector index with chromem-go, an embedded
// pure-Go vector database. Each user gets their own collection so
// cross-user isolation is structural, not a query filter.
type ChromemIndex struct {
	db          *chromem.DB
	dimension   int
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	owners      map[string]string // embeddingID -> userID, for Delete
}

// NewChromemIndex creates a chromem-backed index. An empty path keeps
// all collections in process memory; a path makes them persistent.
func NewChromemIndex(path string, dimension int) (*ChromemIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("memory: open chromem db: %w", err)
		}
	}
	return &ChromemIndex{
		db:          db,
		dimension:   dimension,
		collections: make(map[string]*chromem.Collection),
		owners:      make(map[string]string),
	}, nil
}

func collectionName(userID string) string {
	return "user_" + userID
}

func (c *ChromemIndex) collection(userID string) (*chromem.Collection, error) {
	c.mu.RLock()
	col, ok := c.collections[userID]
	c.mu.RUnlock()
	if ok {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[userID]; ok {
		return col, nil
	}

	col, err := c.db.GetOrCreateCollection(collectionName(userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memory: create collection for user %s: %w", userID, err)
	}
	c.collections[userID] = col
	return col, nil
}

// Upsert adds or replaces an entry in the user's collection.
func (c *ChromemIndex) Upsert(ctx context.Context, entry Entry) error {
	if len(entry.Vector) != c.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.dimension, len(entry.Vector))
	}

	col, err := c.collection(entry.UserID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        entry.EmbeddingID,
		Content:   entry.MemoryID,
		Embedding: entry.Vector,
		Metadata: map[string]string{
			"memory_id":  entry.MemoryID,
			"created_at": strconv.FormatInt(entry.CreatedAt.UnixNano(), 10),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("memory: add document: %w", err)
	}

	c.mu.Lock()
	c.owners[entry.EmbeddingID] = entry.UserID
	c.mu.Unlock()
	return nil
}

// Delete removes an entry. Deleting an absent entry is a no-op.
func (c *ChromemIndex) Delete(ctx context.Context, embeddingID string) error {
	c.mu.RLock()
	userID, ok := c.owners[embeddingID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	col, err := c.collection(userID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, embeddingID); err != nil {
		return fmt.Errorf("memory: delete document: %w", err)
	}

	c.mu.Lock()
	delete(c.owners, embeddingID)
	c.mu.Unlock()
	return nil
}

// DeleteByUser drops the user's whole collection.
func (c *ChromemIndex) DeleteByUser(ctx context.Context, userID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for id, uid := range c.owners {
		if uid == userID {
			delete(c.owners, id)
			count++
		}
	}
	if _, ok := c.collections[userID]; ok || count > 0 {
		if err := c.db.DeleteCollection(collectionName(userID)); err != nil {
			return count, fmt.Errorf("memory: delete collection: %w", err)
		}
		delete(c.collections, userID)
	}
	return count, nil
}

// Query returns up to k hits from the user's collection, ascending by
// distance with recency breaking ties.
func (c *ChromemIndex) Query(ctx context.Context, userID string, vector []float32, k int) ([]Hit, error) {
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.dimension, len(vector))
	}
	if k <= 0 {
		return nil, nil
	}

	col, err := c.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	n := k
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		if strings.Contains(err.Error(), "nResults") {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: chromem query: %w", err)
	}

	type scored struct {
		hit     Hit
		created int64
	}
	scoredHits := make([]scored, 0, len(results))
	for _, r := range results {
		created, _ := strconv.ParseInt(r.Metadata["created_at"], 10, 64)
		scoredHits = append(scoredHits, scored{
			hit: Hit{
				MemoryID:    r.Metadata["memory_id"],
				EmbeddingID: r.ID,
				Distance:    1 - float64(r.Similarity),
			},
			created: created,
		})
	}
	sort.Slice(scoredHits, func(i, j int) bool {
		if scoredHits[i].hit.Distance != scoredHits[j].hit.Distance {
			return scoredHits[i].hit.Distance < scoredHits[j].hit.Distance
		}
		return scoredHits[i].created > scoredHits[j].created
	})

	hits := make([]Hit, len(scoredHits))
	for i, s := range scoredHits {
		hits[i] = s.hit
	}
	return hits, nil
}

// Len returns the number of entries across all collections.
func (c *ChromemIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.owners)
}

var _ Index = (*ChromemIndex)(nil)
