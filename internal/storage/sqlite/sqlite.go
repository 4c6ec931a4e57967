// Package sqlite is the embedded storage.Repository backend, used for local
// runs and tests. It registers the "sqlite" and "file" DSN schemes.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/FranksOps/leadfinder/internal/storage"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ensure sqliteRepository implements storage.Repository
var _ storage.Repository = (*sqliteRepository)(nil)

func init() {
	storage.Register(func(ctx context.Context, dsn string) (storage.Repository, error) {
		return New(ctx, dsn)
	}, "sqlite", "file")
}

type sqliteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// New opens dsn, applies pending migrations and returns the repository.
// "sqlite://path" is rewritten to the driver's plain path form.
func New(ctx context.Context, dsn string) (storage.Repository, error) {
	db, err := sql.Open("sqlite", driverDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// SQLite allows one writer; serialize in the pool instead of failing
	// with SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	return &sqliteRepository{db: db, now: time.Now}, nil
}

func driverDSN(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "sqlite:"):
		return strings.TrimPrefix(dsn, "sqlite:")
	}
	return dsn
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("sqlite: migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate up: %w", err)
	}
	return nil
}

const upsertQuery = `
INSERT INTO businesses (
	id, name, category, address, phone, website, rating, review_count, lead_score, audit_summary, discovered_at, last_updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	category = excluded.category,
	address = excluded.address,
	phone = excluded.phone,
	website = excluded.website,
	rating = excluded.rating,
	review_count = excluded.review_count,
	lead_score = excluded.lead_score,
	audit_summary = excluded.audit_summary,
	last_updated_at = excluded.last_updated_at
RETURNING discovered_at, last_updated_at
`

func (r *sqliteRepository) Upsert(ctx context.Context, b *storage.Business) error {
	audit, err := storage.MarshalAudit(b.Audit)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	discovered := b.DiscoveredAt
	if discovered.IsZero() {
		discovered = now
	}

	var rating sql.NullFloat64
	if b.Rating != nil {
		rating = sql.NullFloat64{Float64: *b.Rating, Valid: true}
	}
	var score sql.NullInt64
	if b.LeadScore != nil {
		score = sql.NullInt64{Int64: int64(*b.LeadScore), Valid: true}
	}

	var discoveredNs, updatedNs int64
	err = r.db.QueryRowContext(ctx, upsertQuery,
		b.ID,
		b.Name,
		b.Category,
		b.Address,
		b.Phone,
		b.Website,
		rating,
		b.ReviewCount,
		score,
		audit,
		discovered.UnixNano(),
		now.UnixNano(),
	).Scan(&discoveredNs, &updatedNs)
	if err != nil {
		return fmt.Errorf("sqlite: upsert %s: %w", b.ID, err)
	}

	b.DiscoveredAt = fromNanos(discoveredNs)
	b.LastUpdatedAt = fromNanos(updatedNs)
	return nil
}

const selectColumns = `SELECT id, name, category, address, phone, website, rating, review_count, lead_score, audit_summary, discovered_at, last_updated_at FROM businesses`

func (r *sqliteRepository) Get(ctx context.Context, id string) (*storage.Business, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	b, err := scanBusiness(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", id, err)
	}
	return b, nil
}

func (r *sqliteRepository) Query(ctx context.Context, filter storage.Filter) ([]*storage.Business, error) {
	query := selectColumns + ` WHERE lead_score IS NOT NULL AND lead_score >= ?`
	args := []any{filter.MinScore}

	if filter.Category != "" {
		query += ` AND lower(category) = lower(?)`
		args = append(args, filter.Category)
	}

	query += ` ORDER BY lead_score DESC, discovered_at ASC, id ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var results []*storage.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: query: %w", err)
		}
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	return results, nil
}

func (r *sqliteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM businesses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *sqliteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

func (r *sqliteRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBusiness(s scanner) (*storage.Business, error) {
	var (
		b                     storage.Business
		rating                sql.NullFloat64
		score                 sql.NullInt64
		audit                 sql.NullString
		discoveredNs, updated int64
	)
	err := s.Scan(
		&b.ID, &b.Name, &b.Category, &b.Address, &b.Phone, &b.Website,
		&rating, &b.ReviewCount, &score, &audit, &discoveredNs, &updated,
	)
	if err != nil {
		return nil, err
	}

	if rating.Valid {
		v := rating.Float64
		b.Rating = &v
	}
	if score.Valid {
		v := int(score.Int64)
		b.LeadScore = &v
	}
	if audit.Valid {
		if b.Audit, err = storage.UnmarshalAudit([]byte(audit.String)); err != nil {
			return nil, err
		}
	}
	b.DiscoveredAt = fromNanos(discoveredNs)
	b.LastUpdatedAt = fromNanos(updated)
	return &b, nil
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
