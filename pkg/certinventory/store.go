// Persistent record of issued certificates: what is live for which domain,
// which mode produced it and when it is due for renewal.
package certinventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var ErrNotFound = errors.New("certificate not found")

type Record struct {
	Domain         string    `json:"domain"`
	Mode           string    `json:"mode"` // webroot | standalone
	FullchainPath  string    `json:"fullchain_path"`
	PrivateKeyPath string    `json:"private_key_path"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// one month before expiry, matching the renewal job's cadence
func RenewAt(expires time.Time) time.Time {
	return expires.AddDate(0, -1, 0)
}

const schema = `
CREATE TABLE IF NOT EXISTS certificates (
	domain TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	fullchain_path TEXT NOT NULL,
	private_key_path TEXT NOT NULL,
	issued_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);`

type Store struct {
	pool *sqlitex.Pool
}

func Open(path string) (*Store, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("inventory: open %s: %w", path, err)
	}

	store := &Store{pool: pool}

	if err := store.migrate(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("inventory: migrate: %w", err)
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) migrate() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.ExecuteScript(conn, schema, nil)
}

// Record stores an issuance. Re-issuance for the same domain replaces the
// previous row, the same way the live files are replaced on disk.
func (s *Store) Record(ctx context.Context, rec Record) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("inventory: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO certificates (
			domain, mode, fullchain_path, private_key_path, issued_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?);`,
		&sqlitex.ExecOptions{
			Args: []interface{}{
				rec.Domain,
				rec.Mode,
				rec.FullchainPath,
				rec.PrivateKeyPath,
				timeFormat(rec.IssuedAt),
				timeFormat(rec.ExpiresAt),
			},
		})
	if err != nil {
		return fmt.Errorf("inventory: record %s: %w", rec.Domain, err)
	}

	return nil
}

func (s *Store) ByDomain(ctx context.Context, domain string) (*Record, error) {
	records, err := s.query(ctx, `SELECT * FROM certificates WHERE domain = ?;`, domain)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, domain)
	}

	return &records[0], nil
}

func (s *Store) All(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `SELECT * FROM certificates ORDER BY domain;`)
}

func (s *Store) DueForRenewal(ctx context.Context, now time.Time) ([]Record, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	due := []Record{}
	for _, rec := range all {
		if RenewAt(rec.ExpiresAt).Before(now) {
			due = append(due, rec)
		}
	}

	return due, nil
}

func (s *Store) Remove(ctx context.Context, domain string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("inventory: %w", err)
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn,
		`DELETE FROM certificates WHERE domain = ?;`,
		&sqlitex.ExecOptions{Args: []interface{}{domain}})
}

func (s *Store) query(ctx context.Context, sql string, args ...interface{}) ([]Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	defer s.pool.Put(conn)

	records := []Record{}

	err = sqlitex.Execute(conn, sql, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rec, err := recordFromRow(stmt)
			if err != nil {
				return err
			}
			records = append(records, *rec)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: query: %w", err)
	}

	return records, nil
}

func recordFromRow(stmt *sqlite.Stmt) (*Record, error) {
	issuedAt, err := timeParse(stmt.GetText("issued_at"))
	if err != nil {
		return nil, err
	}

	expiresAt, err := timeParse(stmt.GetText("expires_at"))
	if err != nil {
		return nil, err
	}

	return &Record{
		Domain:         stmt.GetText("domain"),
		Mode:           stmt.GetText("mode"),
		FullchainPath:  stmt.GetText("fullchain_path"),
		PrivateKeyPath: stmt.GetText("private_key_path"),
		IssuedAt:       issuedAt,
		ExpiresAt:      expiresAt,
	}, nil
}

func timeFormat(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func timeParse(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
