// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welanie/dealpipe/internal/product"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// uniqueViolation is the Postgres error code raised when a concurrent
// writer wins the race on the fingerprint constraint.
const uniqueViolation = "23505"

// RecordStoreConfig controls the Postgres connection pool used for
// product records.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RecordStore writes deduplicated product records into Postgres and
// serves the read-only listing used by the query API.
type RecordStore struct {
	pool  dbPool
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided
// config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "product_data"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewRecordStoreWithPool(pool dbPool, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "product_data"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the record table and its uniqueness constraint if
// they do not exist yet.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	category TEXT,
	price DOUBLE PRECISION NOT NULL,
	discounted_price DOUBLE PRECISION NOT NULL,
	discount_percent DOUBLE PRECISION NOT NULL,
	username TEXT,
	is_free BOOLEAN NOT NULL DEFAULT FALSE,
	image_base64 TEXT,
	fingerprint TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure record schema: %w", err)
	}
	return nil
}

// TryInsert checks for an existing record with the same fingerprint or
// the same image content and inserts when neither exists. The check and
// the insert form one logical operation: if a concurrent writer races
// past the check, the fingerprint constraint violation is reported as
// product.ResultDuplicate instead of an error. Image-content equality is
// a second, independent duplicate signal so a re-posted image with
// reworded text is still rejected.
func (s *RecordStore) TryInsert(
	ctx context.Context,
	rec product.CandidateRecord,
	fingerprint string,
) (product.InsertResult, string, error) {
	if s == nil || s.pool == nil {
		return product.ResultDuplicate, "", fmt.Errorf("record store is not configured")
	}
	if fingerprint == "" {
		return product.ResultDuplicate, "", fmt.Errorf("fingerprint is required")
	}

	existsQuery := fmt.Sprintf(`
SELECT 1 FROM %s
WHERE fingerprint = $1 OR ($2::text <> '' AND image_base64 = $2)
LIMIT 1`, s.table)

	var one int
	err := s.pool.QueryRow(ctx, existsQuery, fingerprint, rec.Image).Scan(&one)
	switch {
	case err == nil:
		return product.ResultDuplicate, "", nil
	case errors.Is(err, pgx.ErrNoRows):
		// Not seen before; insert below.
	default:
		return product.ResultDuplicate, "", fmt.Errorf("check duplicate: %w", err)
	}

	insertQuery := fmt.Sprintf(`
INSERT INTO %s (
	name,
	category,
	price,
	discounted_price,
	discount_percent,
	username,
	is_free,
	image_base64,
	fingerprint
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
RETURNING id`, s.table)

	var id string
	err = s.pool.QueryRow(ctx, insertQuery,
		rec.Name,
		nullableText(rec.Category),
		rec.Price,
		rec.DiscountedPrice,
		rec.DiscountPercent,
		nullableText(rec.Username),
		rec.IsFree,
		nullableText(rec.Image),
		fingerprint,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return product.ResultDuplicate, "", nil
		}
		return product.ResultDuplicate, "", fmt.Errorf("insert record: %w", err)
	}
	return product.ResultInserted, id, nil
}

// List returns the most recently stored records, newest first.
func (s *RecordStore) List(ctx context.Context, limit int) ([]product.StoredRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`
SELECT id, name, category, price, discounted_price, discount_percent, username, is_free, image_base64, fingerprint
FROM %s
ORDER BY created_at DESC
LIMIT $1`, s.table)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []product.StoredRecord
	for rows.Next() {
		var (
			rec      product.StoredRecord
			category *string
			username *string
			image    *string
		)
		err := rows.Scan(
			&rec.ID,
			&rec.Name,
			&category,
			&rec.Price,
			&rec.DiscountedPrice,
			&rec.DiscountPercent,
			&username,
			&rec.IsFree,
			&image,
			&rec.Fingerprint,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		rec.Category = derefText(category)
		rec.Username = derefText(username)
		rec.Image = derefText(image)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return records, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
