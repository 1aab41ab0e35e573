package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sanction-watch/internal/db"
)

// DefaultPostgresTable holds cache entries when no table is configured.
const DefaultPostgresTable = "sanctions_cache"

// Postgres persists entries in one row per source.
type Postgres struct {
	pool  db.Pool
	table string
}

// NewPostgres wraps pool. table may be schema-qualified.
func NewPostgres(pool db.Pool, table string) *Postgres {
	if table == "" {
		table = DefaultPostgresTable
	}
	return &Postgres{pool: pool, table: db.SanitizeTable(table)}
}

// Migrate creates the cache table.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	source_id  TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, p.table))
	return eris.Wrap(err, "postgres: migrate")
}

func (p *Postgres) Load(ctx context.Context, sourceID string) ([]byte, bool, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE source_id = $1`, p.table),
		sourceID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: load %s", sourceID)
	}
	return payload, true, nil
}

func (p *Postgres) Save(ctx context.Context, sourceID string, payload []byte) error {
	_, err := p.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (source_id, payload, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (source_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`, p.table),
		sourceID, payload,
	)
	return eris.Wrapf(err, "postgres: save %s", sourceID)
}

func (p *Postgres) Delete(ctx context.Context, sourceID string) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source_id = $1`, p.table), sourceID)
	return eris.Wrapf(err, "postgres: delete %s", sourceID)
}

func (p *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT source_id FROM %s ORDER BY source_id`, p.table))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "postgres: scan key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "postgres: list iterate")
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
