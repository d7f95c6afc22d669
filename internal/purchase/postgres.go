package purchase

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gdxemberai/gmm-tools/internal/corpus"
	"github.com/gdxemberai/gmm-tools/internal/model"
)

// PostgresStore implements Store using PostgreSQL.
// Monetary columns are NUMERIC, scanned through ::TEXT into decimals.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed purchase store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Insert writes the purchase and its comparable sale in one transaction,
// so a failed sale insert rolls the purchase back too.
func (s *PostgresStore) Insert(ctx context.Context, p *model.Purchase, sale *model.ComparableSale) error {
	var estS, plS, gradeS *string
	if p.EstimatedValue != nil {
		v := p.EstimatedValue.String()
		estS = &v
	}
	if p.ProfitLoss != nil {
		v := p.ProfitLoss.String()
		plS = &v
	}
	if p.Grade != nil {
		v := p.Grade.String()
		gradeS = &v
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("purchase: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO purchases (id, listing_title, listing_price, player_name, year, brand,
		        variation, grade, grader, subject_id, line_id, variant_id,
		        estimated_value, profit_loss, match_tier, sales_count, purchased_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7, $8::NUMERIC, $9, $10, $11, $12,
		        $13::NUMERIC, $14::NUMERIC, $15, $16, $17)`,
		p.ID, p.ListingTitle, p.ListingPrice.String(), p.PlayerName, p.Year, p.Brand,
		p.Variation, gradeS, p.Grader, p.SubjectID, p.LineID, p.VariantID,
		estS, plS, p.MatchTier, p.SalesCount, p.PurchasedAt,
	)
	if err != nil {
		return fmt.Errorf("purchase: insert: %w", err)
	}

	if err := corpus.InsertSaleTx(ctx, tx, sale); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("purchase: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]model.Purchase, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("purchase: count: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, listing_title, listing_price::TEXT, player_name, year, brand,
		        variation, grade::TEXT, grader, subject_id, line_id, variant_id,
		        estimated_value::TEXT, profit_loss::TEXT, match_tier, sales_count, purchased_at
		 FROM purchases
		 ORDER BY purchased_at DESC, id
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("purchase: list: %w", err)
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		var (
			p                 model.Purchase
			priceS            string
			gradeS, estS, plS *string
		)
		if err := rows.Scan(&p.ID, &p.ListingTitle, &priceS, &p.PlayerName, &p.Year, &p.Brand,
			&p.Variation, &gradeS, &p.Grader, &p.SubjectID, &p.LineID, &p.VariantID,
			&estS, &plS, &p.MatchTier, &p.SalesCount, &p.PurchasedAt); err != nil {
			return nil, 0, err
		}
		p.ListingPrice, _ = decimal.NewFromString(priceS)
		p.Grade = parseDecimal(gradeS)
		p.EstimatedValue = parseDecimal(estS)
		p.ProfitLoss = parseDecimal(plS)
		purchases = append(purchases, p)
	}
	return purchases, total, rows.Err()
}

func parseDecimal(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}
