package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Compile-time interface guard.
var _ Backend = (*SQLiteBackend)(nil)

// SQLiteBackend stores each collection as a table of JSON bodies keyed by
// id, with filters and ordering pushed down via json_extract.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at the given path and
// applies pragmas for WAL mode and foreign keys. SQLite performs best with
// a single write connection; WAL enables concurrent readers.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires pragmas as SQL statements, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	return &SQLiteBackend{db: db}, nil
}

// DB returns the underlying *sql.DB for direct queries.
func (b *SQLiteBackend) DB() *sql.DB {
	return b.db
}

// Table returns a query over the named collection.
func (b *SQLiteBackend) Table(name string) Query {
	return &sqliteQuery{backend: b, collection: name}
}

// EnsureCollections creates the backing table for each named collection if
// absent, plus indexes over the tenant and owner keys every runtime query
// filters on.
func (b *SQLiteBackend) EnsureCollections(ctx context.Context, names ...string) error {
	for _, name := range names {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (id TEXT PRIMARY KEY, body TEXT NOT NULL)`, name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (json_extract(body, '$.company_id'))`, "idx_"+name+"_company", name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (json_extract(body, '$.module_id'))`, "idx_"+name+"_module", name),
		}
		for _, stmt := range stmts {
			if _, err := b.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("provision collection %q: %w", name, err)
			}
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type sqliteQuery struct {
	backend    *SQLiteBackend
	collection string
	filters    []eqFilter
	orderField string
	orderDesc  bool
	limit      int
}

func (q *sqliteQuery) Eq(field string, value any) Query {
	q.filters = append(q.filters, eqFilter{field: field, value: value})
	return q
}

func (q *sqliteQuery) Order(field string, desc bool) Query {
	q.orderField = field
	q.orderDesc = desc
	return q
}

func (q *sqliteQuery) Limit(n int) Query {
	q.limit = n
	return q
}

// fieldExpr returns the SQL expression addressing a document field. The id
// is a real column; everything else lives in the JSON body.
func fieldExpr(field string) string {
	if field == "id" {
		return "id"
	}
	return fmt.Sprintf("json_extract(body, '$.%s')", field)
}

// bindValue converts a filter value to its SQLite representation.
// json_extract yields integers for JSON booleans, so bind bools as 0/1.
func bindValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

func (q *sqliteQuery) whereClause() (string, []any) {
	if len(q.filters) == 0 {
		return "", nil
	}
	var conds []string
	var args []any
	for _, f := range q.filters {
		conds = append(conds, fieldExpr(f.field)+" = ?")
		args = append(args, bindValue(f.value))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// wrapTableError converts "no such table" failures into ErrNotProvisioned.
func wrapTableError(err error, collection string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %s", ErrNotProvisioned, collection)
	}
	return err
}

func (q *sqliteQuery) Select(ctx context.Context) ([]map[string]any, error) {
	where, args := q.whereClause()
	query := fmt.Sprintf(`SELECT body FROM %q`, q.collection) + where
	if q.orderField != "" {
		dir := "ASC"
		if q.orderDesc {
			dir = "DESC"
		}
		query += " ORDER BY " + fieldExpr(q.orderField) + " " + dir
	}
	if q.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.limit)
	}

	rows, err := q.backend.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapTableError(err, q.collection)
	}
	defer rows.Close()

	docs := make([]map[string]any, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("decode row body: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (q *sqliteQuery) Insert(ctx context.Context, doc map[string]any) (map[string]any, error) {
	id, ok := docID(doc)
	if !ok {
		return nil, ErrMissingID
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode row body: %w", err)
	}
	stmt := fmt.Sprintf(`INSERT INTO %q (id, body) VALUES (?, ?)`, q.collection)
	if _, err := q.backend.db.ExecContext(ctx, stmt, id, string(body)); err != nil {
		return nil, wrapTableError(err, q.collection)
	}
	return doc, nil
}

func (q *sqliteQuery) Update(ctx context.Context, values map[string]any) ([]map[string]any, error) {
	matched, err := q.Select(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := q.backend.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	updated := make([]map[string]any, 0, len(matched))
	stmt := fmt.Sprintf(`UPDATE %q SET body = ? WHERE id = ?`, q.collection)
	for _, doc := range matched {
		for k, v := range values {
			doc[k] = v
		}
		body, err := json.Marshal(doc)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("encode row body: %w", err)
		}
		id, _ := docID(doc)
		if _, err := tx.ExecContext(ctx, stmt, string(body), id); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("update row %q: %w", id, err)
		}
		updated = append(updated, doc)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

func (q *sqliteQuery) Delete(ctx context.Context) error {
	where, args := q.whereClause()
	stmt := fmt.Sprintf(`DELETE FROM %q`, q.collection) + where
	if _, err := q.backend.db.ExecContext(ctx, stmt, args...); err != nil {
		return wrapTableError(err, q.collection)
	}
	return nil
}
