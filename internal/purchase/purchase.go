// Package purchase records buys and feeds each one back into the sales
// corpus so future analyses price against it.
package purchase

import (
	"context"

	"github.com/gdxemberai/gmm-tools/internal/model"
)

// Store persists purchase records.
type Store interface {
	// Insert persists a purchase together with its comparable sale.
	// The two writes are atomic: if either fails, neither row survives.
	Insert(ctx context.Context, p *model.Purchase, sale *model.ComparableSale) error

	// List returns purchases newest-first with paging, plus the total count.
	List(ctx context.Context, limit, offset int) ([]model.Purchase, int64, error)
}
