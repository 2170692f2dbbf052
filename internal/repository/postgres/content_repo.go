package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"hivemind/internal/metrics"
	"hivemind/internal/platform/cas"
)

const backendName = "postgres"

const schema = `
CREATE TABLE IF NOT EXISTS content (
    id         TEXT PRIMARY KEY,
    data       BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS refs (
    name       TEXT PRIMARY KEY,
    target     TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type ContentRepo struct {
	db *sql.DB
}

func NewContentRepo(db *sql.DB) *ContentRepo {
	return &ContentRepo{db: db}
}

// Migrate creates the tables. Safe to call multiple times.
func (r *ContentRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create content schema: %w", err)
	}
	return nil
}

func (r *ContentRepo) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cas.Sum(data)
	if err != nil {
		return cid.Undef, err
	}

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO content (id, data)
        VALUES ($1, $2)
        ON CONFLICT (id) DO NOTHING
    `, id.String(), data)
	metrics.IncStoreOp(backendName, "put", err)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: put %s: %w", cas.ErrStoreUnavailable, id, err)
	}
	return id, nil
}

func (r *ContentRepo) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM content WHERE id = $1`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.IncStoreOp(backendName, "get", nil)
		return nil, fmt.Errorf("%w: %s", cas.ErrContentNotFound, id)
	}
	metrics.IncStoreOp(backendName, "get", err)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", cas.ErrStoreUnavailable, id, err)
	}
	return data, nil
}

func (r *ContentRepo) SetRef(ctx context.Context, name string, id cid.Cid) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO refs (name, target)
        VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE
        SET target = EXCLUDED.target,
            updated_at = now()
    `, name, id.String())
	metrics.IncStoreOp(backendName, "set_ref", err)
	if err != nil {
		return fmt.Errorf("%w: set ref %s: %w", cas.ErrStoreUnavailable, name, err)
	}
	return nil
}

func (r *ContentRepo) Ref(ctx context.Context, name string) (cid.Cid, error) {
	var target string
	err := r.db.QueryRowContext(ctx, `SELECT target FROM refs WHERE name = $1`, name).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return cid.Undef, fmt.Errorf("%w: %s", cas.ErrRefNotFound, name)
	}
	metrics.IncStoreOp(backendName, "ref", err)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: ref %s: %w", cas.ErrStoreUnavailable, name, err)
	}
	return cas.Parse(target)
}

func (r *ContentRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", cas.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *ContentRepo) Close() error {
	return r.db.Close()
}
