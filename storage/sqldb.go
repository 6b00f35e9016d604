package storage

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/tolelom/tolask/core"
)

// Dialect selects the SQL flavour used by SQLDB.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

type dialectSQL struct {
	createTable string
	upsert      string
}

var dialects = map[Dialect]dialectSQL{
	DialectSQLite: {
		createTable: `CREATE TABLE IF NOT EXISTS kv (k BLOB PRIMARY KEY, v BLOB NOT NULL)`,
		upsert:      `INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
	},
	DialectMySQL: {
		createTable: `CREATE TABLE IF NOT EXISTS kv (k VARBINARY(255) NOT NULL PRIMARY KEY, v LONGBLOB NOT NULL)`,
		upsert:      `INSERT INTO kv (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)`,
	},
}

// SQLDB implements DB as a single key-value table in a SQL database.
type SQLDB struct {
	sqlDB   *sql.DB
	dialect dialectSQL
}

// OpenSQLite opens (or creates) a SQLite key-value store at path.
func OpenSQLite(path string) (*SQLDB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	return OpenSQL(DialectSQLite, dsn)
}

// OpenSQL opens a key-value store using the given dialect and DSN and
// creates the backing table if needed.
func OpenSQL(dialect Dialect, dsn string) (*SQLDB, error) {
	d, ok := dialects[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	sqlDB, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}
	if _, err := sqlDB.Exec(d.createTable); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLDB{sqlDB: sqlDB, dialect: d}, nil
}

func (s *SQLDB) Get(key []byte) ([]byte, error) {
	var v []byte
	err := s.sqlDB.QueryRow(`SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *SQLDB) Set(key, value []byte) error {
	_, err := s.sqlDB.Exec(s.dialect.upsert, key, value)
	return err
}

func (s *SQLDB) Delete(key []byte) error {
	_, err := s.sqlDB.Exec(`DELETE FROM kv WHERE k = ?`, key)
	return err
}

// NewIterator loads the matching rows eagerly; the state this ledger keeps
// per prefix is small enough to hold in memory.
func (s *SQLDB) NewIterator(prefix []byte) Iterator {
	var (
		rows *sql.Rows
		err  error
	)
	if end := prefixEnd(prefix); end != nil {
		rows, err = s.sqlDB.Query(`SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k`, prefix, end)
	} else {
		rows, err = s.sqlDB.Query(`SELECT k, v FROM kv WHERE k >= ? ORDER BY k`, prefix)
	}
	if err != nil {
		return &sliceIterator{idx: -1, err: err}
	}
	defer rows.Close()

	it := &sliceIterator{idx: -1}
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			it.err = err
			return it
		}
		it.keys = append(it.keys, k)
		it.vals = append(it.vals, v)
	}
	it.err = rows.Err()
	return it
}

func (s *SQLDB) NewBatch() Batch {
	return &sqlBatch{db: s}
}

// Close closes the SQL handle.
func (s *SQLDB) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

type sliceIterator struct {
	keys, vals [][]byte
	idx        int
	err        error
}

func (it *sliceIterator) Next() bool    { it.idx++; return it.err == nil && it.idx < len(it.keys) }
func (it *sliceIterator) Key() []byte   { return it.keys[it.idx] }
func (it *sliceIterator) Value() []byte { return it.vals[it.idx] }
func (it *sliceIterator) Release()      {}
func (it *sliceIterator) Error() error  { return it.err }

type sqlBatchOp struct {
	key   []byte
	value []byte // nil means delete
}

// sqlBatch applies its buffered operations in a single SQL transaction.
type sqlBatch struct {
	db  *SQLDB
	ops []sqlBatchOp
}

func (b *sqlBatch) Set(key, value []byte) {
	b.ops = append(b.ops, sqlBatchOp{key: bytes.Clone(key), value: append([]byte{}, value...)})
}

func (b *sqlBatch) Delete(key []byte) {
	b.ops = append(b.ops, sqlBatchOp{key: bytes.Clone(key)})
}

func (b *sqlBatch) Reset() { b.ops = nil }

func (b *sqlBatch) Write() error {
	tx, err := b.db.sqlDB.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	for _, op := range b.ops {
		if op.value == nil {
			_, err = tx.Exec(`DELETE FROM kv WHERE k = ?`, op.key)
		} else {
			_, err = tx.Exec(b.db.dialect.upsert, op.key, op.value)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("batch write: %w", err)
		}
	}
	return tx.Commit()
}
