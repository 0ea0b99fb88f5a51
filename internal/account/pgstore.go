package account

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects with lib/pq and ensures the accounts table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, mapPostgresError("ping", err)
	}
	s := &PostgresStore{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS ascension_accounts (
			id         TEXT PRIMARY KEY,
			payload    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return mapPostgresError("create schema", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (Record, error) {
	const query = `SELECT payload FROM ascension_accounts WHERE id = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, strings.TrimSpace(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, mapPostgresError("load", err)
	}
	return decodeRecord(raw)
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	raw, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO ascension_accounts (id, payload, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (id) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, query, strings.TrimSpace(rec.ID), raw, rec.UpdatedAt); err != nil {
		return mapPostgresError("save", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, id string) error {
	const query = `DELETE FROM ascension_accounts WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, strings.TrimSpace(id)); err != nil {
		return mapPostgresError("clear", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// mapPostgresError maps SQLSTATE class 53 (insufficient resources) to
// ErrQuotaExceeded and connection failures to ErrUnavailable.
func mapPostgresError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "53":
			return fmt.Errorf("%w: postgres %s: %v", ErrQuotaExceeded, op, err)
		case "08", "57":
			return fmt.Errorf("%w: postgres %s: %v", ErrUnavailable, op, err)
		}
		return fmt.Errorf("postgres %s: %w", op, err)
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: postgres %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("postgres %s: %w", op, err)
}
