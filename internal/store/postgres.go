package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps every table as JSONB documents in one relation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	config.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(connString string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(connString))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres URL to the pgx5 driver scheme.
func migrateURL(connString string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix)
		}
	}
	return connString
}

// Query returns matching documents in insertion order.
func (p *PostgresStore) Query(ctx context.Context, table string, filter Filter) ([]Record, error) {
	where, args, err := compileFilter(table, filter)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, "SELECT doc FROM documents WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

const upsertSQL = `
	INSERT INTO documents (tbl, doc_key, doc)
	VALUES ($1, $2, $3::jsonb)
	ON CONFLICT (tbl, doc_key) DO UPDATE SET doc = documents.doc || EXCLUDED.doc, updated_at = now()`

// Upsert merges records keyed by uniqueKey in a single batch.
func (p *PostgresStore) Upsert(ctx context.Context, table string, records []Record, uniqueKey string) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		key, err := KeyOf(rec, uniqueKey)
		if err != nil {
			return err
		}
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s record: %w", table, err)
		}
		batch.Queue(upsertSQL, table, key, string(doc))
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// Append inserts records under fresh keys.
func (p *PostgresStore) Append(ctx context.Context, table string, records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s record: %w", table, err)
		}
		batch.Queue(`INSERT INTO documents (tbl, doc_key, doc) VALUES ($1, $2, $3::jsonb)`,
			table, uuid.NewString(), string(doc))
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append %s: %w", table, err)
	}
	return nil
}

// Close releases the pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

var sqlOps = map[string]string{
	OpLT:  "<",
	OpLTE: "<=",
	OpGT:  ">",
	OpGTE: ">=",
	OpNE:  "IS DISTINCT FROM",
}

// compileFilter turns a Filter into a WHERE clause over doc. Field names are
// passed as parameters, never interpolated.
func compileFilter(table string, f Filter) (string, []any, error) {
	args := []any{table}
	clauses := []string{"tbl = $1"}

	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		want := f[field]
		if ops, isOps := want.(map[string]any); isOps {
			names := make([]string, 0, len(ops))
			for op := range ops {
				names = append(names, op)
			}
			sort.Strings(names)
			for _, op := range names {
				sqlOp, ok := sqlOps[op]
				if !ok {
					return "", nil, fmt.Errorf("unsupported filter operator %q on %s", op, field)
				}
				clause, clauseArgs := predicate(field, sqlOp, ops[op], len(args))
				clauses = append(clauses, clause)
				args = append(args, clauseArgs...)
			}
			continue
		}
		clause, clauseArgs := predicate(field, "=", want, len(args))
		clauses = append(clauses, clause)
		args = append(args, clauseArgs...)
	}
	return strings.Join(clauses, " AND "), args, nil
}

// predicate builds one comparison. n is the number of arguments already
// bound.
func predicate(field, op string, value any, n int) (string, []any) {
	fieldRef := fmt.Sprintf("doc->>$%d", n+1)
	valRef := fmt.Sprintf("$%d", n+2)

	// nil means missing or JSON null; ->> yields SQL NULL for both.
	if value == nil {
		switch op {
		case "=":
			return fieldRef + " IS NULL", []any{field}
		case sqlOps[OpNE]:
			return fieldRef + " IS NOT NULL", []any{field}
		}
		return "FALSE", nil
	}

	if f, ok := toFloat(value); ok {
		return fmt.Sprintf("(%s)::numeric %s %s::numeric", fieldRef, op, valRef), []any{field, f}
	}
	if b, ok := value.(bool); ok {
		return fmt.Sprintf("(%s)::boolean %s %s::boolean", fieldRef, op, valRef), []any{field, b}
	}
	s, _ := toString(value)
	if s == "" && value != nil {
		s = fmt.Sprint(value)
	}
	return fmt.Sprintf("%s %s %s", fieldRef, op, valRef), []any{field, s}
}
