package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultCredentialTable = "mapgrid_credential"

// PostgresBackend persists the credential in PostgreSQL. It exists for
// shared-workstation and CI deployments where neither a per-user keyring
// nor a local credential file is appropriate. A single row keyed by a
// fixed id holds the current credential.
type PostgresBackend struct {
	db    *sql.DB
	table string
}

// OpenPostgres connects to the database described by dsn and ensures the
// credential table exists.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres backend: DSN is required")
	}
	if table == "" {
		table = defaultCredentialTable
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres backend: open connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres backend: ping database: %w", err)
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY,
		token TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table)
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres backend: ensure table: %w", err)
	}

	return &PostgresBackend{db: db, table: table}, nil
}

// Name identifies the backend in logs.
func (p *PostgresBackend) Name() string { return "postgres" }

// Load reads the credential row.
func (p *PostgresBackend) Load() (*Credential, error) {
	query := fmt.Sprintf("SELECT token, expiry_date FROM %s WHERE id = 1", p.table)
	var cred Credential
	err := p.db.QueryRow(query).Scan(&cred.Token, &cred.ExpiryDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres backend: load credential: %w", err)
	}
	return &cred, nil
}

// Save upserts the credential row.
func (p *PostgresBackend) Save(cred *Credential) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, token, expiry_date, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET token = EXCLUDED.token,
			expiry_date = EXCLUDED.expiry_date, updated_at = now()`, p.table)
	if _, err := p.db.Exec(query, cred.Token, cred.ExpiryDate); err != nil {
		return fmt.Errorf("postgres backend: save credential: %w", err)
	}
	return nil
}

// Remove deletes the credential row.
func (p *PostgresBackend) Remove() error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = 1", p.table)
	if _, err := p.db.Exec(query); err != nil {
		return fmt.Errorf("postgres backend: remove credential: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (p *PostgresBackend) Close() error {
	return p.db.Close()
}
