package backend

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

func init() {
	Register("sqlite", NewSQLite)
}

type sqlitedb struct {
	db     *sql.DB
	get    *sql.Stmt
	upsert *sql.Stmt
}

// NewSQLite opens a WAL-mode SQLite database holding one kv table.
func NewSQLite(dir string, opts Options) (Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create dir %s", dir)
	}

	synchronous := "NORMAL"
	if opts.Fsync {
		synchronous = "FULL"
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=%s",
		filepath.Join(dir, "kv.db"), synchronous)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE kv (
		key BLOB PRIMARY KEY,
		value BLOB NOT NULL
	) WITHOUT ROWID`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create table")
	}

	get, err := db.Prepare(`SELECT value FROM kv WHERE key = ?`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "prepare select")
	}

	upsert, err := db.Prepare(`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`)
	if err != nil {
		get.Close()
		db.Close()
		return nil, errors.Wrap(err, "prepare upsert")
	}

	return &sqlitedb{db: db, get: get, upsert: upsert}, nil
}

func (d *sqlitedb) Name() string { return "sqlite" }

func (d *sqlitedb) Query(key []byte) error {
	var value []byte
	err := d.get.QueryRow(key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

func (d *sqlitedb) Insert(key, value []byte) error {
	_, err := d.upsert.Exec(key, value)
	return err
}

func (d *sqlitedb) Update(key, value []byte) error {
	_, err := d.upsert.Exec(key, value)
	return err
}

// Sync checkpoints the WAL into the main database file.
func (d *sqlitedb) Sync() error {
	var busy, logFrames, checkpointed int
	err := d.db.QueryRow(`PRAGMA wal_checkpoint(FULL)`).
		Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return err
	}
	if busy != 0 {
		return errors.New("sqlite: wal checkpoint blocked")
	}
	return nil
}

func (d *sqlitedb) Close() error {
	d.get.Close()
	d.upsert.Close()
	return d.db.Close()
}
