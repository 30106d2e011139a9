package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	devenv "snulms/dev/env"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// SQLStore keeps sessions in a `sessions` table, it works with both the
// "sqlite" and the "libsql" drivers. Blobs are sealed the same way FileStore
// seals them when a passphrase is set.
type SQLStore struct {
	db         *sql.DB
	passphrase string
}

// OpenSQLStore opens a database with `driver` and makes sure the schema
// exists. A sqlite dsn is a file path that may start with <dev_state>, its
// directory is created if needed.
func OpenSQLStore(ctx context.Context, driver, dsn, passphrase string) (*SQLStore, error) {
	if driver != "sqlite" && driver != "libsql" {
		return nil, fmt.Errorf("unsupported session store driver '%s'", driver)
	}
	if driver == "sqlite" {
		path, err := sqlitePath(dsn)
		if err != nil {
			return nil, err
		}
		dsn = path
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	store, err := NewSQLStore(ctx, db, passphrase)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func sqlitePath(dsn string) (string, error) {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}
	path, err := devenv.ResolvePath(dsn)
	if err != nil {
		return "", err
	}
	err = os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return "", err
	}
	return path, nil
}

// NewSQLStore wraps an already open database.
func NewSQLStore(ctx context.Context, db *sql.DB, passphrase string) (*SQLStore, error) {
	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLStore{db: db, passphrase: passphrase}, nil
}

func (s *SQLStore) Save(ctx context.Context, name string, blob []byte) error {
	err := checkName(name)
	if err != nil {
		return err
	}
	contents, err := sealBlob(s.passphrase, blob)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`insert into sessions(name, blob, updated_at) values (?, ?, ?)
		on conflict(name) do update set blob = excluded.blob, updated_at = excluded.updated_at`,
		name, contents, time.Now().Unix(),
	)
	return err
}

func (s *SQLStore) Load(ctx context.Context, name string) ([]byte, error) {
	err := checkName(name)
	if err != nil {
		return nil, err
	}
	var blob []byte
	err = s.db.QueryRowContext(ctx, "select blob from sessions where name = ?", name).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return openBlob(s.passphrase, blob)
}

func (s *SQLStore) Delete(ctx context.Context, name string) error {
	err := checkName(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "delete from sessions where name = ?", name)
	return err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
