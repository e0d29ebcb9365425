package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fleetgrid/fleetgrid/pkg/httperr"
)

// errConnBroken simulates a lost backend connection in the memory engine.
var errConnBroken = errors.New("registry: connection broken")

// MemoryEngine is the in-process Engine. It serializes transactions with a
// single mutex held from Begin to Commit or Rollback, keeps per-transaction
// shadow tables for rollback, and can simulate a broken connection for
// exercising the reset-and-retry path.
type MemoryEngine struct {
	mu     sync.Mutex
	tables map[string][]Row
	nextID map[string]int64
	broken bool
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		tables: make(map[string][]Row),
		nextID: make(map[string]int64),
	}
}

// BreakConnection makes every subsequent Begin fail with a connection-level
// error until Reset is called. Test hook.
func (e *MemoryEngine) BreakConnection() {
	e.mu.Lock()
	e.broken = true
	e.mu.Unlock()
}

func (e *MemoryEngine) Begin(ctx context.Context) (Tx, error) {
	e.mu.Lock()
	if e.broken {
		e.mu.Unlock()
		return nil, errConnBroken
	}
	return &memoryTx{engine: e, shadow: make(map[string][]Row)}, nil
}

func (e *MemoryEngine) Unusable(err error) bool {
	return errors.Is(err, errConnBroken)
}

func (e *MemoryEngine) Reset(ctx context.Context) error {
	e.mu.Lock()
	e.broken = false
	e.mu.Unlock()
	return nil
}

// memoryTx mutates the engine's tables directly while holding the engine
// mutex; shadow keeps the pre-transaction copy of every touched table so
// Rollback can restore it.
type memoryTx struct {
	engine *MemoryEngine
	shadow map[string][]Row
	done   bool
}

func (tx *memoryTx) touch(name string) {
	if _, ok := tx.shadow[name]; ok {
		return
	}
	orig := tx.engine.tables[name]
	cp := make([]Row, len(orig))
	for i, r := range orig {
		cp[i] = r.clone()
	}
	tx.shadow[name] = cp
}

func (tx *memoryTx) Insert(ctx context.Context, t *Table, r Row) (int64, error) {
	if tx.done {
		return 0, errors.New("registry: transaction closed")
	}
	tx.touch(t.Name)
	row := r.clone()
	id := row.ID()
	if id == 0 {
		tx.engine.nextID[t.Name]++
		id = tx.engine.nextID[t.Name]
	} else if id > tx.engine.nextID[t.Name] {
		tx.engine.nextID[t.Name] = id
	}
	row[ColID] = id
	for _, stored := range tx.engine.tables[t.Name] {
		if stored.ID() == id {
			return 0, httperr.NewConflict("Duplicate object",
				fmt.Sprintf("%s %d already exists", t.Name, id))
		}
	}
	if err := tx.checkUnique(t, row, id); err != nil {
		return 0, err
	}
	tx.engine.tables[t.Name] = append(tx.engine.tables[t.Name], row)
	return id, nil
}

func (tx *memoryTx) Select(ctx context.Context, t *Table, c Criteria, keys []Sort, limit int) ([]Row, error) {
	if tx.done {
		return nil, errors.New("registry: transaction closed")
	}
	var out []Row
	for _, r := range tx.engine.tables[t.Name] {
		if c.Matches(r) {
			out = append(out, r.clone())
		}
	}
	SortRows(out, keys)
	return Truncate(out, limit), nil
}

func (tx *memoryTx) Update(ctx context.Context, t *Table, id int64, r Row, guard Criteria) (bool, error) {
	if tx.done {
		return false, errors.New("registry: transaction closed")
	}
	tx.touch(t.Name)
	rows := tx.engine.tables[t.Name]
	for i, stored := range rows {
		if stored.ID() != id || !guard.Matches(stored) {
			continue
		}
		next := stored.clone()
		for k, v := range r {
			next[k] = v
		}
		if err := tx.checkUnique(t, next, id); err != nil {
			return false, err
		}
		rows[i] = next
		return true, nil
	}
	return false, nil
}

func (tx *memoryTx) Delete(ctx context.Context, t *Table, id int64) (bool, error) {
	if tx.done {
		return false, errors.New("registry: transaction closed")
	}
	tx.touch(t.Name)
	rows := tx.engine.tables[t.Name]
	for i, stored := range rows {
		if stored.ID() == id {
			tx.engine.tables[t.Name] = append(rows[:i], rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) Count(ctx context.Context, t *Table, c Criteria) (int64, error) {
	if tx.done {
		return 0, errors.New("registry: transaction closed")
	}
	var n int64
	for _, r := range tx.engine.tables[t.Name] {
		if c.Matches(r) {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.engine.mu.Unlock()
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	for name, orig := range tx.shadow {
		tx.engine.tables[name] = orig
	}
	tx.engine.mu.Unlock()
	return nil
}

// checkUnique enforces the table's unique column sets, scoped per tenant for
// tenant-owned tables. skip excludes the row being updated.
func (tx *memoryTx) checkUnique(t *Table, row Row, skip int64) error {
	for _, set := range t.Unique {
		for _, stored := range tx.engine.tables[t.Name] {
			if stored.ID() == skip {
				continue
			}
			if t.TenantOwned && stored.tenantID() != row.tenantID() {
				continue
			}
			same := true
			for _, f := range set {
				if compareValues(stored[f], row[f]) != 0 {
					same = false
					break
				}
			}
			if same {
				return httperr.NewConflict("Duplicate object",
					fmt.Sprintf("%s with the same %v already exists", t.Name, set))
			}
		}
	}
	return nil
}
