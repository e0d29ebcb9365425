package registry

import (
	"sort"
	"strings"
)

// Op is a comparison operator of a criteria condition.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
	OpIn Op = "in"
)

// Cond is one field predicate. For OpIn the value is a slice ([]int64 or
// []string); for the comparison operators it is a scalar.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Criteria is a conjunction of field predicates.
type Criteria []Cond

func Eq(field string, v any) Cond { return Cond{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v any) Cond { return Cond{Field: field, Op: OpNe, Value: v} }
func Lt(field string, v any) Cond { return Cond{Field: field, Op: OpLt, Value: v} }
func Le(field string, v any) Cond { return Cond{Field: field, Op: OpLe, Value: v} }
func Gt(field string, v any) Cond { return Cond{Field: field, Op: OpGt, Value: v} }
func Ge(field string, v any) Cond { return Cond{Field: field, Op: OpGe, Value: v} }

func InInt64(field string, vs []int64) Cond  { return Cond{Field: field, Op: OpIn, Value: vs} }
func InString(field string, vs []string) Cond { return Cond{Field: field, Op: OpIn, Value: vs} }

// Matches evaluates the conjunction against a row. It is the same semantics
// the SQL engine compiles to, used for in-memory evaluation and for
// re-validating rows delivered through the wait/notify registry.
func (c Criteria) Matches(r Row) bool {
	for _, cond := range c {
		if !cond.matches(r[cond.Field]) {
			return false
		}
	}
	return true
}

func (c Cond) matches(v any) bool {
	switch c.Op {
	case OpIn:
		switch want := c.Value.(type) {
		case []int64:
			got := asInt64(v)
			for _, w := range want {
				if got == w {
					return true
				}
			}
		case []string:
			got, _ := v.(string)
			for _, w := range want {
				if got == w {
					return true
				}
			}
		}
		return false
	case OpEq:
		return compareValues(v, c.Value) == 0
	case OpNe:
		return compareValues(v, c.Value) != 0
	case OpLt:
		return compareValues(v, c.Value) < 0
	case OpLe:
		return compareValues(v, c.Value) <= 0
	case OpGt:
		return compareValues(v, c.Value) > 0
	case OpGe:
		return compareValues(v, c.Value) >= 0
	default:
		return false
	}
}

func compareValues(a, b any) int {
	if as, ok := a.(string); ok {
		bs, _ := b.(string)
		return strings.Compare(as, bs)
	}
	if ab, ok := a.(bool); ok {
		bb, _ := b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	}
	af, bf := asFloat64(a), asFloat64(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	default:
		return 0
	}
}

// Sort is one ordering key; rows compare by Field, descending when Desc.
type Sort struct {
	Field string
	Desc  bool
}

func Asc(field string) Sort  { return Sort{Field: field} }
func Desc(field string) Sort { return Sort{Field: field, Desc: true} }

// SortRows orders rows by the given keys, with ascending id as the final
// tie-break so results are deterministic.
func SortRows(rows []Row, keys []Sort) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(rows[i][k.Field], rows[j][k.Field])
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return rows[i].ID() < rows[j].ID()
	})
}

// Truncate caps rows at limit; limit <= 0 means unlimited.
func Truncate(rows []Row, limit int) []Row {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
