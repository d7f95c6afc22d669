package corpus

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gdxemberai/gmm-tools/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Fuzzy matching relies on the pg_trgm extension's similarity() function.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed corpus.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const saleColumns = `id, subject_id, line_id, variant_id, year,
       grade::TEXT, grader, price::TEXT, sold_at`

func (s *PostgresStore) QueryExact(ctx context.Context, q ExactQuery) ([]model.ComparableSale, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.SubjectID != "" {
		add("subject_id = $%d", q.SubjectID)
	}
	if q.LineID != "" {
		add("line_id = $%d", q.LineID)
	}
	if q.VariantID != "" {
		add("variant_id = $%d", q.VariantID)
	}
	if q.Grade != nil {
		add("grade = $%d::NUMERIC", q.Grade.String())
	}
	if q.Grader != nil {
		add("grader = $%d", *q.Grader)
	}

	where := "TRUE"
	if len(conds) > 0 {
		where = strings.Join(conds, " AND ")
	}
	args = append(args, q.Limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM sales_history
		 WHERE %s
		 ORDER BY sold_at DESC, id
		 LIMIT $%d`, saleColumns, where, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("corpus: exact query: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

func (s *PostgresStore) QueryFuzzy(ctx context.Context, q FuzzyQuery) ([]model.ComparableSale, error) {
	var (
		conds []string
		order = "sold_at DESC, id"
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.SubjectID != "" {
		args = append(args, q.SubjectID, q.Threshold)
		conds = append(conds, fmt.Sprintf("similarity(subject_id, $%d) >= $%d", len(args)-1, len(args)))
		order = fmt.Sprintf("similarity(subject_id, $%d) DESC, sold_at DESC, id", len(args)-1)
	}
	if q.LineID != "" {
		add("line_id = $%d", q.LineID)
	}
	if q.Year != nil {
		add("year = $%d", *q.Year)
	}

	where := "TRUE"
	if len(conds) > 0 {
		where = strings.Join(conds, " AND ")
	}
	args = append(args, q.Limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM sales_history
		 WHERE %s
		 ORDER BY %s
		 LIMIT $%d`, saleColumns, where, order, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("corpus: fuzzy query: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// rowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertSale(ctx context.Context, db rowQuerier, sale *model.ComparableSale) error {
	var gradeStr *string
	if sale.Grade != nil {
		g := sale.Grade.String()
		gradeStr = &g
	}

	err := db.QueryRow(ctx,
		`INSERT INTO sales_history (subject_id, line_id, variant_id, year, grade, grader, price, sold_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7::NUMERIC, $8)
		 RETURNING id`,
		sale.SubjectID, sale.LineID, sale.VariantID, sale.Year,
		gradeStr, sale.Grader, sale.Price.String(), sale.SoldAt,
	).Scan(&sale.ID)
	if err != nil {
		return fmt.Errorf("corpus: insert sale: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertSale(ctx context.Context, sale *model.ComparableSale) error {
	return insertSale(ctx, s.pool, sale)
}

// InsertSaleTx appends a sale inside an existing transaction so callers can
// commit it atomically with rows of their own.
func InsertSaleTx(ctx context.Context, tx pgx.Tx, sale *model.ComparableSale) error {
	return insertSale(ctx, tx, sale)
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(sold_at) FROM sales_history`).
		Scan(&st.TotalSales, &st.LatestSoldAt)
	if err != nil {
		return Stats{}, fmt.Errorf("corpus: stats: %w", err)
	}
	return st, nil
}

func scanSales(rows pgx.Rows) ([]model.ComparableSale, error) {
	var sales []model.ComparableSale
	for rows.Next() {
		var (
			sale           model.ComparableSale
			gradeS, priceS *string
		)
		if err := rows.Scan(&sale.ID, &sale.SubjectID, &sale.LineID, &sale.VariantID,
			&sale.Year, &gradeS, &sale.Grader, &priceS, &sale.SoldAt); err != nil {
			return nil, err
		}
		if gradeS != nil {
			g, _ := decimal.NewFromString(*gradeS)
			sale.Grade = &g
		}
		if priceS != nil {
			sale.Price, _ = decimal.NewFromString(*priceS)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}
