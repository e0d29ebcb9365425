// Package registry is the tenant-scoped generic record store: every entity
// table goes through the same transactional add/get/update/delete operations,
// with predicate criteria, sort specifications, referential checks and
// long-poll notification on successful writes.
package registry

import "fmt"

// Row is one generic record. Every stored row carries an "id" value assigned
// by the store; rows of tenant-owned tables additionally carry "tenant_id".
// Values are int64, float64, string or bool.
type Row map[string]any

const (
	ColID       = "id"
	ColTenantID = "tenant_id"
)

type ColumnKind int

const (
	ColInt ColumnKind = iota
	ColFloat
	ColText
	ColBool
)

type Column struct {
	Name string
	Kind ColumnKind
}

// Cascade declares a child table whose rows referencing a deleted parent row
// through Field are deleted along with it.
type Cascade struct {
	Child *Table
	Field string
}

// Table describes one record table. Columns excludes the implicit id and
// tenant_id columns. Unique lists column sets enforced unique per tenant for
// tenant-owned tables and globally otherwise.
type Table struct {
	Name        string
	TenantOwned bool
	Columns     []Column
	Unique      [][]string
	Cascades    []Cascade
}

func (t *Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasField reports whether name is a stored field of the table, including the
// implicit identity and tenant columns.
func (t *Table) HasField(name string) bool {
	if name == ColID {
		return true
	}
	if name == ColTenantID && t.TenantOwned {
		return true
	}
	_, ok := t.column(name)
	return ok
}

func (t *Table) validateRow(r Row) error {
	for field := range r {
		if field == ColID || (field == ColTenantID && t.TenantOwned) {
			continue
		}
		if _, ok := t.column(field); !ok {
			return fmt.Errorf("table %s has no field %q", t.Name, field)
		}
	}
	return nil
}

func (r Row) clone() Row {
	cp := make(Row, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// ID returns the row's identity, tolerating the numeric widths different
// engines hand back.
func (r Row) ID() int64 {
	return asInt64(r[ColID])
}

func (r Row) tenantID() int64 {
	return asInt64(r[ColTenantID])
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
