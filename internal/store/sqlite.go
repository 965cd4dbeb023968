package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/apexswarm/leadgen/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	platform      TEXT NOT NULL,
	handle        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	source        TEXT NOT NULL DEFAULT '',
	enrichment    TEXT NOT NULL DEFAULT '{}',
	error_message TEXT NOT NULL DEFAULT '',
	version       INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	processed_at  DATETIME,
	UNIQUE (platform, handle)
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_updated_at ON leads(updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const leadColumns = `id, platform, handle, status, source, enrichment, error_message, version, created_at, updated_at, processed_at`

func (s *SQLiteStore) FindByKey(ctx context.Context, platform, handle string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE platform = ? AND handle = ?`,
		platform, handle,
	)
	return scanLead(row)
}

func (s *SQLiteStore) Upsert(ctx context.Context, lead *model.Lead) error {
	enrichment, err := json.Marshal(lead.Enrichment)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}

	if lead.Version == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO leads (id, platform, handle, status, source, enrichment, error_message, version, created_at, updated_at, processed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
			lead.ID, lead.Platform, lead.Handle, string(lead.Status), string(lead.Source),
			string(enrichment), lead.ErrorMessage, lead.CreatedAt.UTC(), lead.UpdatedAt.UTC(), nullableTime(lead.ProcessedAt),
		)
		if err != nil {
			// A unique violation means another writer created the lead first.
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return ErrSyncConflict
			}
			return eris.Wrapf(err, "sqlite: insert lead %s", lead.ID)
		}
		lead.Version = 1
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, enrichment = ?, error_message = ?, version = version + 1, updated_at = ?, processed_at = ?
		 WHERE id = ? AND version = ?`,
		string(lead.Status), string(enrichment), lead.ErrorMessage,
		lead.UpdatedAt.UTC(), nullableTime(lead.ProcessedAt),
		lead.ID, lead.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead %s", lead.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrSyncConflict
	}
	lead.Version++
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads`
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Platform != "" {
		conditions = append(conditions, "platform = ?")
		args = append(args, filter.Platform)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var status, source, enrichment string
	var processedAt sql.NullTime

	err := row.Scan(&l.ID, &l.Platform, &l.Handle, &status, &source, &enrichment,
		&l.ErrorMessage, &l.Version, &l.CreatedAt, &l.UpdatedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan lead")
	}

	l.Status = model.Status(status)
	l.Source = model.Source(source)
	if err := json.Unmarshal([]byte(enrichment), &l.Enrichment); err != nil {
		return nil, eris.Wrap(err, "unmarshal enrichment")
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		l.ProcessedAt = &t
	}
	return &l, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
