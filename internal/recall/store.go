package recall

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("not found")

// Store is the minimal record store the aggregator writes to and the
// match engine reads from. Implementations must be safe under
// concurrent callers; batch commits are atomic per batch.
type Store interface {
	Upsert(ctx context.Context, rec Record) (UpsertOutcome, error)
	UpsertBatch(ctx context.Context, recs []Record) (BatchResult, error)
	Get(ctx context.Context, agency, sourceID string) (Record, error)
	All(ctx context.Context) ([]Record, error)
	Count(ctx context.Context) (int, error)
}

type MemoryStore struct {
	mu                 sync.RWMutex
	records            map[Key]Record
	overwriteFetchedAt bool
}

func NewMemoryStore(overwriteFetchedAt bool) *MemoryStore {
	return &MemoryStore{
		records:            map[Key]Record{},
		overwriteFetchedAt: overwriteFetchedAt,
	}
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) (UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(rec), nil
}

func (s *MemoryStore) UpsertBatch(_ context.Context, recs []Record) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result BatchResult
	for _, rec := range recs {
		switch s.upsertLocked(rec) {
		case OutcomeInserted:
			result.Inserted++
		case OutcomeUpdated:
			result.Updated++
		}
	}
	return result, nil
}

func (s *MemoryStore) upsertLocked(rec Record) UpsertOutcome {
	key := rec.Key()
	existing, ok := s.records[key]
	if ok && !s.overwriteFetchedAt {
		// Re-ingestion keeps first-seen time; everything else is
		// overwritten.
		rec.FetchedAt = existing.FetchedAt
	}
	s.records[key] = rec
	if ok {
		return OutcomeUpdated
	}
	return OutcomeInserted
}

func (s *MemoryStore) Get(_ context.Context, agency, sourceID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[Key{Agency: agency, SourceID: sourceID}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) All(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
