package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mnemod/mnemod/pkg/llm"
)

// storeLogger is the minimal logging interface the store needs.
// logger.Logger satisfies it.
type storeLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Category string
	Tag      string
}

// Store is the structured memory store: durable user-owned records in
// tiered storage plus a vector index entry per record. Saving embeds
// first and treats the pair of writes as one transaction; a failed
// durable write rolls the vector back.
type Store struct {
	storage  recordStorage
	index    Index
	embedder llm.Embedder
	log      storeLogger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the store logger.
func WithStoreLogger(l storeLogger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore creates a structured memory store.
func NewStore(storage recordStorage, index Index, embedder llm.Embedder, opts ...StoreOption) *Store {
	s := &Store{
		storage:  storage,
		index:    index,
		embedder: embedder,
		log:      nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save embeds content and persists a new record. If embedding fails
// nothing is persisted; if the durable write fails the vector entry is
// rolled back and a PersistenceError returned.
func (s *Store) Save(ctx context.Context, userID, content, category string, tags []string, source string) (*MemoryRecord, error) {
	now := time.Now().UTC()
	record := &MemoryRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Content:   strings.TrimSpace(content),
		Category:  strings.TrimSpace(category),
		Tags:      tags,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	vector, err := s.embedder.Embed(ctx, record.Content)
	if err != nil {
		return nil, err
	}

	record.EmbeddingID = uuid.New().String()
	entry := Entry{
		EmbeddingID: record.EmbeddingID,
		UserID:      userID,
		MemoryID:    record.ID,
		Vector:      vector,
		CreatedAt:   now,
	}
	if err := s.index.Upsert(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.storage.Store(ctx, record); err != nil {
		if delErr := s.index.Delete(ctx, record.EmbeddingID); delErr != nil {
			s.log.Error("vector rollback failed", "embedding_id", record.EmbeddingID, "error", delErr)
		}
		return nil, &PersistenceError{Op: "save", Err: err}
	}

	s.log.Debug("memory saved", "user_id", userID, "memory_id", record.ID, "category", record.Category)
	return record, nil
}

// Get returns the record if it exists and is owned by userID.
func (s *Store) Get(ctx context.Context, userID, id string) (*MemoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	return s.storage.Get(ctx, userID, id)
}

// Update replaces the record content. Changed content is re-embedded
// before the durable write, with the same rollback rules as Save;
// unchanged content skips the embedding call entirely.
func (s *Store) Update(ctx context.Context, userID, id, content string) (*MemoryRecord, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidRecord
	}

	record, err := s.storage.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if record.Content == content {
		return record, nil
	}

	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}

	oldEmbeddingID := record.EmbeddingID
	record.Content = content
	record.EmbeddingID = uuid.New().String()
	record.UpdatedAt = time.Now().UTC()

	entry := Entry{
		EmbeddingID: record.EmbeddingID,
		UserID:      userID,
		MemoryID:    record.ID,
		Vector:      vector,
		CreatedAt:   record.CreatedAt,
	}
	if err := s.index.Upsert(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.storage.Store(ctx, record); err != nil {
		if delErr := s.index.Delete(ctx, record.EmbeddingID); delErr != nil {
			s.log.Error("vector rollback failed", "embedding_id", record.EmbeddingID, "error", delErr)
		}
		return nil, &PersistenceError{Op: "update", Err: err}
	}

	// The old vector is dropped only after the new pair is durable.
	if err := s.index.Delete(ctx, oldEmbeddingID); err != nil {
		s.log.Warn("stale vector cleanup failed", "embedding_id", oldEmbeddingID, "error", err)
	}

	return record, nil
}

// Forget deletes the record and its vector entry. Forgetting an absent
// record reports forgotten=false without an error, so retries are safe.
func (s *Store) Forget(ctx context.Context, userID, id string) (bool, error) {
	record, err := s.storage.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := s.storage.Delete(ctx, userID, id); err != nil {
		return false, &PersistenceError{Op: "forget", Err: err}
	}
	if err := s.index.Delete(ctx, record.EmbeddingID); err != nil {
		s.log.Warn("vector delete failed", "embedding_id", record.EmbeddingID, "error", err)
	}

	s.log.Debug("memory forgotten", "user_id", userID, "memory_id", id)
	return true, nil
}

// List returns the user's records, newest first, optionally filtered
// by category and tag.
func (s *Store) List(ctx context.Context, userID string, filter ListFilter) ([]*MemoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}

	all, err := s.storage.AllByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	records := make([]*MemoryRecord, 0, len(all))
	for _, r := range all {
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if filter.Tag != "" && !r.HasTag(filter.Tag) {
			continue
		}
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Count returns the number of records owned by the user.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	return s.storage.CountByUser(ctx, userID)
}

// ForgetByUser deletes every record and vector entry owned by the user.
func (s *Store) ForgetByUser(ctx context.Context, userID string) (int, error) {
	count, err := s.storage.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, &PersistenceError{Op: "forget_by_user", Err: err}
	}
	if _, err := s.index.DeleteByUser(ctx, userID); err != nil {
		s.log.Warn("vector delete by user failed", "user_id", userID, "error", err)
	}
	return count, nil
}

// Recall embeds the query and returns the k nearest records, ascending
// by distance. Hits whose record has vanished are skipped.
func (s *Store) Recall(ctx context.Context, userID, query string, k int) ([]RecallResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.index.Query(ctx, userID, vector, k)
	if err != nil {
		return nil, err
	}

	results := make([]RecallResult, 0, len(hits))
	for _, hit := range hits {
		record, err := s.storage.Get(ctx, userID, hit.MemoryID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.log.Warn("index hit without record", "memory_id", hit.MemoryID)
				continue
			}
			return nil, err
		}
		results = append(results, RecallResult{Record: record, Distance: hit.Distance})
	}
	return results, nil
}
