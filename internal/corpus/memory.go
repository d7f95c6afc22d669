package corpus

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gdxemberai/gmm-tools/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and development. Not suitable for production (no persistence).
//
// Fuzzy matching mirrors pg_trgm semantics: words are padded, split into
// trigrams, and similarity is the Jaccard ratio of the trigram sets.
type MemoryStore struct {
	mu     sync.RWMutex
	sales  []model.ComparableSale
	nextID int64
}

// NewMemoryStore creates a new in-memory corpus.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) InsertSale(_ context.Context, sale *model.ComparableSale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale.ID = s.nextID
	s.nextID++
	s.sales = append(s.sales, *sale)
	return nil
}

func (s *MemoryStore) QueryExact(_ context.Context, q ExactQuery) ([]model.ComparableSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.ComparableSale
	for _, sale := range s.sales {
		if q.SubjectID != "" && sale.SubjectID != q.SubjectID {
			continue
		}
		if q.LineID != "" && sale.LineID != q.LineID {
			continue
		}
		if q.VariantID != "" && (sale.VariantID == nil || *sale.VariantID != q.VariantID) {
			continue
		}
		if q.Grade != nil && (sale.Grade == nil || !sale.Grade.Equal(*q.Grade)) {
			continue
		}
		if q.Grader != nil && (sale.Grader == nil || *sale.Grader != *q.Grader) {
			continue
		}
		matched = append(matched, sale)
	}

	// Most recent first; insertion order (ID) breaks timestamp ties.
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].SoldAt.Equal(matched[j].SoldAt) {
			return matched[i].SoldAt.After(matched[j].SoldAt)
		}
		return matched[i].ID < matched[j].ID
	})

	return capSales(matched, q.Limit), nil
}

func (s *MemoryStore) QueryFuzzy(_ context.Context, q FuzzyQuery) ([]model.ComparableSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		sale model.ComparableSale
		sim  float64
	}

	var matched []scored
	for _, sale := range s.sales {
		if q.LineID != "" && sale.LineID != q.LineID {
			continue
		}
		if q.Year != nil && (sale.Year == nil || *sale.Year != *q.Year) {
			continue
		}
		sim := 1.0
		if q.SubjectID != "" {
			sim = TrigramSimilarity(sale.SubjectID, q.SubjectID)
			if sim < q.Threshold {
				continue
			}
		}
		matched = append(matched, scored{sale: sale, sim: sim})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].sim != matched[j].sim {
			return matched[i].sim > matched[j].sim
		}
		if !matched[i].sale.SoldAt.Equal(matched[j].sale.SoldAt) {
			return matched[i].sale.SoldAt.After(matched[j].sale.SoldAt)
		}
		return matched[i].sale.ID < matched[j].sale.ID
	})

	sales := make([]model.ComparableSale, 0, len(matched))
	for _, m := range matched {
		sales = append(sales, m.sale)
	}
	return capSales(sales, q.Limit), nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{TotalSales: int64(len(s.sales))}
	for i := range s.sales {
		t := s.sales[i].SoldAt
		if st.LatestSoldAt == nil || t.After(*st.LatestSoldAt) {
			st.LatestSoldAt = &t
		}
	}
	return st, nil
}

func capSales(sales []model.ComparableSale, limit int) []model.ComparableSale {
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	// Copy so callers never alias internal storage.
	out := make([]model.ComparableSale, len(sales))
	copy(out, sales)
	return out
}

// TrigramSimilarity computes pg_trgm-compatible similarity between two
// strings: each word is padded with two leading and one trailing space,
// decomposed into trigrams, and the score is shared/total distinct
// trigrams. Returns a value in [0, 1].
func TrigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		if len(ta) == len(tb) {
			return 1
		}
		return 0
	}

	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	total := len(ta) + len(tb) - shared
	return float64(shared) / float64(total)
}

func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	// pg_trgm splits on non-alphanumerics, so slug hyphens act as word
	// boundaries ("michael-jordan" -> "michael", "jordan").
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	for _, w := range words {
		padded := "  " + w + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = struct{}{}
		}
	}
	return set
}
