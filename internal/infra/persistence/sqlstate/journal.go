// Package sqlstate stores committed collections as versioned JSON rows in a
// SQL database. It backs both the sqlite and postgres stores; the only
// differences between them are captured by Dialect.
package sqlstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"questionbank/pkg/domain"
)

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2) instead of "?".
	Numbered    bool
	PayloadType string
}

var (
	// SQLite is the modernc.org/sqlite dialect.
	SQLite = Dialect{Name: "sqlite", PayloadType: "BLOB"}
	// Postgres is the pgx dialect.
	Postgres = Dialect{Name: "postgres", Numbered: true, PayloadType: "JSONB"}
)

// Rebind rewrites "?" placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Journal implements memory.Journal over a *sql.DB.
type Journal struct {
	db      *sql.DB
	dialect Dialect
}

// New constructs a journal. Call EnsureSchema before first use.
func New(db *sql.DB, dialect Dialect) *Journal {
	return &Journal{db: db, dialect: dialect}
}

// EnsureSchema creates the collections table when missing.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		payload %s NOT NULL
	)`, j.dialect.PayloadType)
	if _, err := j.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure collections table: %w", err)
	}
	return nil
}

// Version returns the stored version of collection, zero when absent.
func (j *Journal) Version(ctx context.Context, collection string) (int64, error) {
	var v int64
	err := j.db.QueryRowContext(ctx, j.dialect.Rebind(`SELECT version FROM collections WHERE name = ?`), collection).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select version: %w", err)
	}
	return v, nil
}

// Load returns the stored entities and version of collection.
func (j *Journal) Load(ctx context.Context, collection string) ([]domain.Entity, int64, error) {
	var (
		v    int64
		data []byte
	)
	err := j.db.QueryRowContext(ctx, j.dialect.Rebind(`SELECT version, payload FROM collections WHERE name = ?`), collection).Scan(&v, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("select collection: %w", err)
	}
	var entities []domain.Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", collection, err)
	}
	return entities, v, nil
}

// Save replaces the stored collection if its version still equals expected.
func (j *Journal) Save(ctx context.Context, collection string, entities []domain.Entity, expected int64) (newVersion int64, retErr error) {
	if entities == nil {
		entities = []domain.Entity{}
	}
	data, err := json.Marshal(entities)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", collection, err)
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	if expected == 0 {
		res, err = tx.ExecContext(ctx, j.dialect.Rebind(`INSERT INTO collections(name, version, payload) VALUES(?, 1, ?) ON CONFLICT(name) DO NOTHING`), collection, data)
	} else {
		res, err = tx.ExecContext(ctx, j.dialect.Rebind(`UPDATE collections SET version = version + 1, payload = ? WHERE name = ? AND version = ?`), data, collection, expected)
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var actual int64
		if err := tx.QueryRowContext(ctx, j.dialect.Rebind(`SELECT version FROM collections WHERE name = ?`), collection).Scan(&actual); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("select version: %w", err)
		}
		return 0, &domain.ConflictError{Collection: collection, Expected: expected, Actual: actual}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return expected + 1, nil
}

// Collections lists the stored collection names in ascending order.
func (j *Journal) Collections(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select collections: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return names, nil
}
