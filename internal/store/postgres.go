package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/apexswarm/leadgen/internal/model"
)

// Pool is the subset of pgxpool.Pool used by the store. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	platform      TEXT NOT NULL,
	handle        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	source        TEXT NOT NULL DEFAULT '',
	enrichment    JSONB NOT NULL DEFAULT '{}',
	error_message TEXT NOT NULL DEFAULT '',
	version       BIGINT NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	processed_at  TIMESTAMPTZ,
	UNIQUE (platform, handle)
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_updated_at ON leads(updated_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, platform, handle string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE platform = $1 AND handle = $2`,
		platform, handle,
	)
	return scanPGLead(row)
}

func (s *PostgresStore) Upsert(ctx context.Context, lead *model.Lead) error {
	enrichment, err := json.Marshal(lead.Enrichment)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enrichment")
	}

	if lead.Version == 0 {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO leads (id, platform, handle, status, source, enrichment, error_message, version, created_at, updated_at, processed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10)`,
			lead.ID, lead.Platform, lead.Handle, string(lead.Status), string(lead.Source),
			enrichment, lead.ErrorMessage, lead.CreatedAt.UTC(), lead.UpdatedAt.UTC(), lead.ProcessedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrSyncConflict
			}
			return eris.Wrapf(err, "postgres: insert lead %s", lead.ID)
		}
		lead.Version = 1
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, enrichment = $2, error_message = $3, version = version + 1, updated_at = $4, processed_at = $5
		 WHERE id = $6 AND version = $7`,
		string(lead.Status), enrichment, lead.ErrorMessage,
		lead.UpdatedAt.UTC(), lead.ProcessedAt,
		lead.ID, lead.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead %s", lead.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrSyncConflict
	}
	lead.Version++
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads`
	var conditions []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}
	if filter.Platform != "" {
		conditions = append(conditions, "platform = "+arg(filter.Platform))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanPGLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: iterate leads")
}

func scanPGLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var status, source string
	var enrichment []byte
	var processedAt *time.Time

	err := row.Scan(&l.ID, &l.Platform, &l.Handle, &status, &source, &enrichment,
		&l.ErrorMessage, &l.Version, &l.CreatedAt, &l.UpdatedAt, &processedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan lead")
	}

	l.Status = model.Status(status)
	l.Source = model.Source(source)
	if err := json.Unmarshal(enrichment, &l.Enrichment); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal enrichment")
	}
	l.ProcessedAt = processedAt
	return &l, nil
}
