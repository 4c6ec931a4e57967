// Package postgres is the production storage.Repository backend. It
// registers the "postgres" and "postgresql" DSN schemes.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/FranksOps/leadfinder/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ensure postgresRepository implements storage.Repository
var _ storage.Repository = (*postgresRepository)(nil)

func init() {
	storage.Register(func(ctx context.Context, dsn string) (storage.Repository, error) {
		return New(ctx, dsn)
	}, "postgres", "postgresql")
}

type postgresRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New connects to dsn, applies pending migrations and returns the repository.
func New(ctx context.Context, dsn string) (storage.Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &postgresRepository{pool: pool, now: time.Now}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: migrations: %w", err)
	}

	// Closing this handle leaves the pool open.
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("postgres: migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("postgres: migrate up: %w", err)
	}
	return nil
}

const upsertQuery = `
INSERT INTO businesses (
	id, name, category, address, phone, website, rating, review_count, lead_score, audit_summary, discovered_at, last_updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	category = EXCLUDED.category,
	address = EXCLUDED.address,
	phone = EXCLUDED.phone,
	website = EXCLUDED.website,
	rating = EXCLUDED.rating,
	review_count = EXCLUDED.review_count,
	lead_score = EXCLUDED.lead_score,
	audit_summary = EXCLUDED.audit_summary,
	last_updated_at = EXCLUDED.last_updated_at
RETURNING discovered_at, last_updated_at
`

func (r *postgresRepository) Upsert(ctx context.Context, b *storage.Business) error {
	audit, err := storage.MarshalAudit(b.Audit)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	discovered := b.DiscoveredAt
	if discovered.IsZero() {
		discovered = now
	}

	err = r.pool.QueryRow(ctx, upsertQuery,
		b.ID,
		b.Name,
		b.Category,
		b.Address,
		b.Phone,
		b.Website,
		b.Rating,
		b.ReviewCount,
		b.LeadScore,
		audit,
		discovered,
		now,
	).Scan(&b.DiscoveredAt, &b.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert %s: %w", b.ID, err)
	}

	b.DiscoveredAt = b.DiscoveredAt.UTC()
	b.LastUpdatedAt = b.LastUpdatedAt.UTC()
	return nil
}

const selectColumns = `SELECT id, name, category, address, phone, website, rating, review_count, lead_score, audit_summary, discovered_at, last_updated_at FROM businesses`

func (r *postgresRepository) Get(ctx context.Context, id string) (*storage.Business, error) {
	b, err := scanBusiness(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", id, err)
	}
	return b, nil
}

func (r *postgresRepository) Query(ctx context.Context, filter storage.Filter) ([]*storage.Business, error) {
	query := selectColumns + ` WHERE lead_score IS NOT NULL AND lead_score >= $1`
	args := []any{filter.MinScore}
	paramCount := 2

	if filter.Category != "" {
		query += fmt.Sprintf(` AND lower(category) = lower($%d)`, paramCount)
		args = append(args, filter.Category)
		paramCount++
	}

	query += ` ORDER BY lead_score DESC, discovered_at ASC, id ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var results []*storage.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: query: %w", err)
		}
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	return results, nil
}

func (r *postgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM businesses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return nil
}

func (r *postgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func scanBusiness(row pgx.Row) (*storage.Business, error) {
	var (
		b     storage.Business
		audit []byte
	)
	err := row.Scan(
		&b.ID, &b.Name, &b.Category, &b.Address, &b.Phone, &b.Website,
		&b.Rating, &b.ReviewCount, &b.LeadScore, &audit, &b.DiscoveredAt, &b.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if b.Audit, err = storage.UnmarshalAudit(audit); err != nil {
		return nil, err
	}
	b.DiscoveredAt = b.DiscoveredAt.UTC()
	b.LastUpdatedAt = b.LastUpdatedAt.UTC()
	return &b, nil
}
