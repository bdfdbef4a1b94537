// Package sqlitestore provides a SQLite implementation of the storage.Store
// interface.
//
// Examples:
//
//	store, err := sqlitestore.New("file:grantrelay.s3db", sqlitestore.WithPrefix("gr_"))
//
//	store, err := sqlitestore.New(":memory:")
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/storage"
	"github.com/mattn/go-sqlite3"
)

// Option is a functional option for configuring the store.
type Option func(*store)

// WithPrefix overrides the default table prefix of "grantrelay_".
func WithPrefix(prefix string) Option {
	return func(s *store) {
		s.prefix = prefix
	}
}

// New returns a store backed by SQLite. The shared table is created
// optimistically.
func New(conn string, opts ...Option) (storage.Store, error) {
	db, err := sql.Open("sqlite3", conn)
	if err != nil {
		return nil, errors.WrapPrefix(err, "failed to open sqlite connection", 0)
	}
	if strings.Contains(conn, ":memory:") {
		// Every connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	}
	s := &store{
		db:     db,
		prefix: storage.DefaultPrefix,
		tables: map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureDefaultTable(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

type store struct {
	db     *sql.DB
	prefix string

	mu     sync.RWMutex
	tables map[string]bool
}

// From ModelInitializer interface. Sets up a dedicated table for the model.
func (s *store) InitModel(ctx context.Context, model storage.Model) error {
	name := storage.Name(model)
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.prefix+name+` (
		id TEXT PRIMARY KEY,
		value BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`)
	if err != nil {
		return errors.WrapPrefix(err, "failed to create table "+name, 0)
	}
	s.mu.Lock()
	s.tables[name] = true
	s.mu.Unlock()
	return nil
}

func (s *store) Read(ctx context.Context, id string, model storage.Model) error {
	if err := storage.ValidateReceiver(model); err != nil {
		return err
	}

	table, where, args := s.target(model, id)
	row := s.db.QueryRowContext(ctx, "SELECT value FROM "+table+" WHERE "+where, args...)

	var value []byte
	if err := row.Scan(&value); err != nil {
		return translateError(err)
	}
	if err := json.Unmarshal(value, model); err != nil {
		return errors.Errorf("%w: %s", storage.ErrInvalidModel, err)
	}
	return nil
}

func (s *store) Upsert(ctx context.Context, models ...storage.Model) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateError(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, model := range models {
		value, err := json.Marshal(model)
		if err != nil {
			return errors.Errorf("%w: %s", storage.ErrInvalidModel, err)
		}

		var query string
		var args []any
		if table, dedicated := s.tableName(model); dedicated {
			query = `INSERT INTO ` + table + ` (id, value, created_at, updated_at)
				VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
				ON CONFLICT(id) DO UPDATE SET
				value = excluded.value, updated_at = CURRENT_TIMESTAMP`
			args = []any{model.PK(), value}
		} else {
			query = `INSERT INTO ` + table + ` (id, entity_type, value, created_at, updated_at)
				VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
				ON CONFLICT(id, entity_type) DO UPDATE SET
				value = excluded.value, updated_at = CURRENT_TIMESTAMP`
			args = []any{model.PK(), storage.Name(model), value}
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return translateError(err)
		}
	}

	return translateError(tx.Commit())
}

func (s *store) Exists(ctx context.Context, id string, model storage.Model) (bool, error) {
	table, where, args := s.target(model, id)
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE "+where, args...).Scan(&count)
	if err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

func (s *store) tableName(model storage.Model) (string, bool) {
	name := storage.Name(model)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tables[name] {
		return s.prefix + name, true
	}
	return s.prefix + "default", false
}

func (s *store) target(model storage.Model, id string) (table, where string, args []any) {
	table, dedicated := s.tableName(model)
	if dedicated {
		return table, "id = ?", []any{id}
	}
	return table, "id = ? AND entity_type = ?", []any{id, storage.Name(model)}
}

func (s *store) ensureDefaultTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.prefix+`default (
		id TEXT,
		entity_type TEXT,
		value BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id, entity_type)
	);`)
	return errors.MaybeWrap(err, 0)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Mark(storage.ErrNotFound, 1)
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrNotFound {
		return errors.Mark(storage.ErrNotFound, 1)
	}
	return errors.Wrap(err, 1)
}
