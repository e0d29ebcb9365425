package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetgrid/fleetgrid/pkg/httperr"
)

// PGEngine is the Postgres Engine backed by a pgx pool. Reset tears the pool
// down and dials a fresh one from the stored DSN.
type PGEngine struct {
	mu   sync.Mutex
	dsn  string
	pool *pgxpool.Pool
}

func NewPGEngine(ctx context.Context, dsn string) (*PGEngine, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PGEngine{dsn: dsn, pool: pool}, nil
}

func (e *PGEngine) Begin(ctx context.Context) (Tx, error) {
	e.mu.Lock()
	pool := e.pool
	e.mu.Unlock()
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

// Unusable reports connection-level failures: dial and socket errors plus the
// Postgres connection-exception (08xxx) and operator-intervention (57Pxx)
// classes. Statement failures such as constraint violations stay out.
func (e *PGEngine) Unusable(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	return false
}

func (e *PGEngine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool.Close()
	pool, err := pgxpool.New(ctx, e.dsn)
	if err != nil {
		return fmt.Errorf("reconnect postgres: %w", err)
	}
	e.pool = pool
	return nil
}

func (e *PGEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool.Close()
}

type pgTx struct {
	tx pgx.Tx
}

func (p *pgTx) Insert(ctx context.Context, t *Table, r Row) (int64, error) {
	cols := make([]string, 0, len(r))
	args := make([]any, 0, len(r))
	ph := make([]string, 0, len(r))
	for _, name := range storedColumns(t) {
		v, ok := r[name]
		if !ok {
			continue
		}
		cols = append(cols, name)
		args = append(args, v)
		ph = append(ph, fmt.Sprintf("$%d", len(args)))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		t.Name, strings.Join(cols, ", "), strings.Join(ph, ", "))
	var id int64
	if err := p.tx.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, mapPGError(t, err)
	}
	return id, nil
}

func (p *pgTx) Select(ctx context.Context, t *Table, c Criteria, keys []Sort, limit int) ([]Row, error) {
	cols := storedColumns(t)
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), t.Name)
	where, args := compileWhere(t, c, 0)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	b.WriteString(" ORDER BY ")
	for _, k := range keys {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, "%s %s, ", k.Field, dir)
	}
	b.WriteString("id ASC")
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	rows, err := p.tx.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, mapPGError(t, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(t, cols, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPGError(t, err)
	}
	return out, nil
}

func (p *pgTx) Update(ctx context.Context, t *Table, id int64, r Row, guard Criteria) (bool, error) {
	sets := make([]string, 0, len(r))
	args := make([]any, 0, len(r)+1)
	for _, col := range t.Columns {
		v, ok := r[col.Name]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col.Name, len(args)))
	}
	if len(sets) == 0 {
		return false, errors.New("registry: empty update")
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", t.Name, strings.Join(sets, ", "), len(args))
	where, whereArgs := compileWhere(t, guard, len(args))
	if where != "" {
		q += " AND " + where
		args = append(args, whereArgs...)
	}
	tag, err := p.tx.Exec(ctx, q, args...)
	if err != nil {
		return false, mapPGError(t, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *pgTx) Delete(ctx context.Context, t *Table, id int64) (bool, error) {
	tag, err := p.tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.Name), id)
	if err != nil {
		return false, mapPGError(t, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *pgTx) Count(ctx context.Context, t *Table, c Criteria) (int64, error) {
	q := fmt.Sprintf("SELECT count(*) FROM %s", t.Name)
	where, args := compileWhere(t, c, 0)
	if where != "" {
		q += " WHERE " + where
	}
	var n int64
	if err := p.tx.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, mapPGError(t, err)
	}
	return n, nil
}

func (p *pgTx) Commit(ctx context.Context) error   { return p.tx.Commit(ctx) }
func (p *pgTx) Rollback(ctx context.Context) error { return p.tx.Rollback(ctx) }

// storedColumns lists the physical column order used for select and insert:
// id, tenant_id for tenant-owned tables, then the declared columns.
func storedColumns(t *Table) []string {
	out := make([]string, 0, len(t.Columns)+2)
	out = append(out, ColID)
	if t.TenantOwned {
		out = append(out, ColTenantID)
	}
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// compileWhere renders a criteria conjunction into SQL with placeholders
// starting after argOffset. OpIn compiles to = ANY($n) over an array
// argument, which matches nothing for an empty slice.
func compileWhere(t *Table, c Criteria, argOffset int) (string, []any) {
	if len(c) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(c))
	args := make([]any, 0, len(c))
	for _, cond := range c {
		args = append(args, cond.Value)
		n := argOffset + len(args)
		if cond.Op == OpIn {
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", cond.Field, n))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s $%d", cond.Field, cond.Op, n))
	}
	return strings.Join(parts, " AND "), args
}

func scanRow(t *Table, cols []string, rows pgx.Rows) (Row, error) {
	dests := make([]any, len(cols))
	ints := make([]int64, len(cols))
	floats := make([]float64, len(cols))
	texts := make([]string, len(cols))
	bools := make([]bool, len(cols))
	for i, name := range cols {
		switch kindOf(t, name) {
		case ColInt:
			dests[i] = &ints[i]
		case ColFloat:
			dests[i] = &floats[i]
		case ColText:
			dests[i] = &texts[i]
		case ColBool:
			dests[i] = &bools[i]
		}
	}
	if err := rows.Scan(dests...); err != nil {
		return nil, mapPGError(t, err)
	}
	out := make(Row, len(cols))
	for i, name := range cols {
		switch kindOf(t, name) {
		case ColInt:
			out[name] = ints[i]
		case ColFloat:
			out[name] = floats[i]
		case ColText:
			out[name] = texts[i]
		case ColBool:
			out[name] = bools[i]
		}
	}
	return out, nil
}

func kindOf(t *Table, name string) ColumnKind {
	if name == ColID || name == ColTenantID {
		return ColInt
	}
	c, _ := t.column(name)
	return c.Kind
}

// mapPGError turns a unique violation into the duplicate-object conflict;
// everything else passes through for the retry and fault layers.
func mapPGError(t *Table, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return httperr.NewConflict("Duplicate object",
			fmt.Sprintf("%s violates unique constraint %s", t.Name, pgErr.ConstraintName))
	}
	return err
}

// CreateTableSQL renders the DDL for one table. Identity ids accept explicit
// values so restores can keep caller-supplied ids.
func CreateTableSQL(t *Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	b.WriteString("    id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY")
	if t.TenantOwned {
		b.WriteString(",\n    tenant_id BIGINT NOT NULL")
	}
	for _, c := range t.Columns {
		fmt.Fprintf(&b, ",\n    %s %s NOT NULL", c.Name, sqlType(c.Kind))
	}
	for _, set := range t.Unique {
		cols := set
		if t.TenantOwned {
			cols = append([]string{ColTenantID}, set...)
		}
		fmt.Fprintf(&b, ",\n    UNIQUE (%s)", strings.Join(cols, ", "))
	}
	b.WriteString("\n)")
	return b.String()
}

func sqlType(k ColumnKind) string {
	switch k {
	case ColFloat:
		return "DOUBLE PRECISION"
	case ColText:
		return "TEXT"
	case ColBool:
		return "BOOLEAN"
	default:
		return "BIGINT"
	}
}
