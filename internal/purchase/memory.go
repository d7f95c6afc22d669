package purchase

import (
	"context"
	"sort"
	"sync"

	"github.com/gdxemberai/gmm-tools/internal/corpus"
	"github.com/gdxemberai/gmm-tools/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing.
type MemoryStore struct {
	mu        sync.RWMutex
	corpus    corpus.Store
	purchases []model.Purchase
}

// NewMemoryStore creates an empty in-memory purchase store that appends
// each purchase's comparable sale to c.
func NewMemoryStore(c corpus.Store) *MemoryStore {
	return &MemoryStore{corpus: c}
}

// Insert writes the comparable sale first: if that fails the purchase is
// never stored, matching the transactional Postgres path.
func (s *MemoryStore) Insert(ctx context.Context, p *model.Purchase, sale *model.ComparableSale) error {
	if err := s.corpus.InsertSale(ctx, sale); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases = append(s.purchases, *p)
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]model.Purchase, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := make([]model.Purchase, len(s.purchases))
	copy(sorted, s.purchases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PurchasedAt.After(sorted[j].PurchasedAt)
	})

	total := int64(len(sorted))
	if offset >= len(sorted) {
		return []model.Purchase{}, total, nil
	}
	sorted = sorted[offset:]
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, total, nil
}
