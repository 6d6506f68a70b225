package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/typeid"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS map_documents (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	document   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresDocuments keeps saved maps in a single table.
type PostgresDocuments struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects with retries and creates the table if needed.
func OpenPostgres(ctx context.Context, url string) (*PostgresDocuments, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if err := Retry(ctx, func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &PostgresDocuments{pool: pool}, nil
}

func (p *PostgresDocuments) Close() { p.pool.Close() }

func (p *PostgresDocuments) Save(ctx context.Context, id string, m *document.Map) (Record, error) {
	body, err := encodeForSave(m)
	if err != nil {
		return Record{}, err
	}
	if id == "" {
		id = typeid.NewMapID()
	}
	var rec Record
	err = p.pool.QueryRow(ctx, `
		INSERT INTO map_documents (id, name, document)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    document = EXCLUDED.document,
		    version = map_documents.version + 1,
		    updated_at = now()
		RETURNING id, name, version, updated_at`,
		id, m.Ref.Name, body,
	).Scan(&rec.ID, &rec.Name, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("save map %s: %w", id, err)
	}
	return rec, nil
}

func (p *PostgresDocuments) Open(ctx context.Context, id string) (*document.Map, Record, error) {
	var (
		rec  Record
		body []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, version, updated_at, document FROM map_documents WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Name, &rec.Version, &rec.UpdatedAt, &body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Record{}, ErrNotFound
		}
		return nil, Record{}, fmt.Errorf("open map %s: %w", id, err)
	}
	m, err := document.Decode(body)
	if err != nil {
		return nil, Record{}, fmt.Errorf("open map %s: %w", id, err)
	}
	return m, rec, nil
}

func (p *PostgresDocuments) List(ctx context.Context) ([]Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, version, updated_at FROM map_documents ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.ID, &r.Name, &r.Version, &r.UpdatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	return recs, nil
}

func (p *PostgresDocuments) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM map_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete map %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
