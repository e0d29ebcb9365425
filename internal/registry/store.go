package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetgrid/fleetgrid/internal/longpoll"
	"github.com/fleetgrid/fleetgrid/pkg/httperr"
)

// TenantsTable holds the tenant directory itself. It is not tenant-owned;
// tenant-owned rows reference it through their implicit tenant_id column.
var TenantsTable = &Table{
	Name: "tenants",
	Columns: []Column{
		{Name: "name", Kind: ColText},
		{Name: "created_at", Kind: ColInt},
	},
	Unique: [][]string{{"name"}},
}

// Engine is a storage backend. Begin opens one transaction; Unusable reports
// whether an error means the backend connection is gone (as opposed to a
// statement-level failure), and Reset re-establishes it.
type Engine interface {
	Begin(ctx context.Context) (Tx, error)
	Unusable(err error) bool
	Reset(ctx context.Context) error
}

// Tx is one storage transaction. Update applies the full row under a guard
// criteria and reports whether a row matched; Delete reports whether the row
// existed.
type Tx interface {
	Insert(ctx context.Context, t *Table, r Row) (int64, error)
	Select(ctx context.Context, t *Table, c Criteria, keys []Sort, limit int) ([]Row, error)
	Update(ctx context.Context, t *Table, id int64, r Row, guard Criteria) (bool, error)
	Delete(ctx context.Context, t *Table, id int64) (bool, error)
	Count(ctx context.Context, t *Table, c Criteria) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store runs every record operation in its own transaction against an Engine,
// retrying exactly once after a connection reset, and publishes committed
// inserts to the long-poll hub keyed by table name.
type Store struct {
	engine      Engine
	hub         *longpoll.Hub[Row]
	defaultWait time.Duration
}

func NewStore(engine Engine) *Store {
	return &Store{
		engine:      engine,
		hub:         longpoll.NewHub[Row](),
		defaultWait: 30 * time.Second,
	}
}

// SetDefaultWait overrides the wait timeout used when a query asks to wait
// without naming one.
func (s *Store) SetDefaultWait(d time.Duration) {
	if d > 0 {
		s.defaultWait = d
	}
}

// AddOptions tunes a batch insert. Checks run inside the transaction before
// any row is written. KeepIDs preserves caller-supplied ids (restore paths);
// CreateTenant lets an unrestricted scope materialize its current tenant on
// first write.
type AddOptions struct {
	Checks       []Check
	KeepIDs      bool
	CreateTenant bool
}

// Query shapes a read. Wait turns an empty result into a long poll that
// resolves when a matching row is inserted, or after Timeout.
type Query struct {
	Criteria Criteria
	Sort     []Sort
	Limit    int
	Wait     bool
	Timeout  time.Duration
}

// Add inserts a batch atomically and returns the stored rows as reloaded
// copies. All rows of a tenant-owned table land in the scope's current
// tenant.
func (s *Store) Add(ctx context.Context, scope Scope, t *Table, rows []Row, opts AddOptions) ([]Row, error) {
	for _, r := range rows {
		if err := t.validateRow(r); err != nil {
			return nil, httperr.NewBadRequest(err.Error())
		}
	}
	var stored []Row
	err := s.run(ctx, func(tx Tx) error {
		stored = stored[:0]
		var tenantID int64
		if t.TenantOwned {
			id, err := s.currentTenantID(ctx, tx, scope, opts.CreateTenant)
			if err != nil {
				return err
			}
			tenantID = id
		}
		if err := runChecks(ctx, tx, opts.Checks); err != nil {
			return err
		}
		for _, r := range rows {
			row := r.clone()
			if t.TenantOwned {
				row[ColTenantID] = tenantID
			}
			if !opts.KeepIDs {
				delete(row, ColID)
			}
			id, err := tx.Insert(ctx, t, row)
			if err != nil {
				return err
			}
			loaded, err := s.reload(ctx, tx, t, id)
			if err != nil {
				return err
			}
			stored = append(stored, loaded)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.hub.Notify(t.Name, stored)
	return stored, nil
}

// Get reads rows visible to the scope. With Wait set and nothing matching,
// the call parks on the table's notification key until a matching insert
// lands or the timeout passes (then it returns an empty result, not an
// error).
func (s *Store) Get(ctx context.Context, scope Scope, t *Table, q Query) ([]Row, error) {
	var rows []Row
	var tenantIDs []int64
	restricted := false
	err := s.run(ctx, func(tx Tx) error {
		ids, restr, err := s.accessibleTenantIDs(ctx, tx, scope, t)
		if err != nil {
			return err
		}
		tenantIDs, restricted = ids, restr
		crit := scopedCriteria(t, q.Criteria, ids, restr)
		rows, err = tx.Select(ctx, t, crit, q.Sort, q.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 || !q.Wait {
		return rows, nil
	}

	timeout := q.Timeout
	if timeout <= 0 {
		timeout = s.defaultWait
	}
	accept := func(r Row) bool {
		if t.TenantOwned && restricted && !containsInt64(tenantIDs, r.tenantID()) {
			return false
		}
		return q.Criteria.Matches(r)
	}
	w := s.hub.Register(t.Name, timeout, accept)
	rows = w.Block(ctx)
	if rows == nil {
		return []Row{}, nil
	}
	SortRows(rows, q.Sort)
	return Truncate(rows, q.Limit), nil
}

// Update replaces the stored row and returns the reloaded copy. The row must
// be visible to the scope.
func (s *Store) Update(ctx context.Context, scope Scope, t *Table, id int64, r Row, checks ...Check) (Row, error) {
	if err := t.validateRow(r); err != nil {
		return nil, httperr.NewBadRequest(err.Error())
	}
	var updated Row
	err := s.run(ctx, func(tx Tx) error {
		ids, restr, err := s.accessibleTenantIDs(ctx, tx, scope, t)
		if err != nil {
			return err
		}
		if err := runChecks(ctx, tx, checks); err != nil {
			return err
		}
		guard := scopedCriteria(t, nil, ids, restr)
		row := r.clone()
		delete(row, ColID)
		delete(row, ColTenantID)
		ok, err := tx.Update(ctx, t, id, row, guard)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(t, id)
		}
		updated, err = s.reload(ctx, tx, t, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes one row and, transitively, every cascade child referencing
// it, all in one transaction.
func (s *Store) Delete(ctx context.Context, scope Scope, t *Table, id int64) error {
	return s.run(ctx, func(tx Tx) error {
		ids, restr, err := s.accessibleTenantIDs(ctx, tx, scope, t)
		if err != nil {
			return err
		}
		crit := scopedCriteria(t, Criteria{Eq(ColID, id)}, ids, restr)
		rows, err := tx.Select(ctx, t, crit, nil, 1)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return notFound(t, id)
		}
		return cascadeDelete(ctx, tx, t, id)
	})
}

// DeleteN removes up to n rows matching crit, ordered by sortField (ties by
// lowest id), cascades included. It is the eviction primitive and therefore
// takes no scope: callers pass fully qualified criteria.
func (s *Store) DeleteN(ctx context.Context, t *Table, n int, key Sort, crit Criteria) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	deleted := 0
	err := s.run(ctx, func(tx Tx) error {
		deleted = 0
		rows, err := tx.Select(ctx, t, crit, []Sort{key}, n)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := cascadeDelete(ctx, tx, t, r.ID()); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Exists reports whether any row visible to the scope matches.
func (s *Store) Exists(ctx context.Context, scope Scope, t *Table, crit Criteria) (bool, error) {
	found := false
	err := s.run(ctx, func(tx Tx) error {
		ids, restr, err := s.accessibleTenantIDs(ctx, tx, scope, t)
		if err != nil {
			return err
		}
		n, err := tx.Count(ctx, t, scopedCriteria(t, crit, ids, restr))
		if err != nil {
			return err
		}
		found = n > 0
		return nil
	})
	return found, err
}

// Count returns the number of rows visible to the scope that match.
func (s *Store) Count(ctx context.Context, scope Scope, t *Table, crit Criteria) (int64, error) {
	var n int64
	err := s.run(ctx, func(tx Tx) error {
		ids, restr, err := s.accessibleTenantIDs(ctx, tx, scope, t)
		if err != nil {
			return err
		}
		n, err = tx.Count(ctx, t, scopedCriteria(t, crit, ids, restr))
		return err
	})
	return n, err
}

// run executes fn in a fresh transaction. If the attempt fails with a
// connection-level error the engine is reset and fn retried exactly once;
// whatever error survives is coerced into the structured failure shape.
func (s *Store) run(ctx context.Context, fn func(Tx) error) error {
	err := s.attempt(ctx, fn)
	if err == nil {
		return nil
	}
	if s.engine.Unusable(err) {
		if rerr := s.engine.Reset(ctx); rerr != nil {
			return coerceFault(rerr)
		}
		if err = s.attempt(ctx, fn); err == nil {
			return nil
		}
	}
	return coerceFault(err)
}

func (s *Store) attempt(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.engine.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) reload(ctx context.Context, tx Tx, t *Table, id int64) (Row, error) {
	rows, err := tx.Select(ctx, t, Criteria{Eq(ColID, id)}, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(t, id)
	}
	return rows[0], nil
}

// currentTenantID resolves the scope's current tenant name to its row id.
// With create set and an unrestricted scope, an unknown tenant is created on
// the spot.
func (s *Store) currentTenantID(ctx context.Context, tx Tx, scope Scope, create bool) (int64, error) {
	if scope.Current == "" {
		return 0, httperr.NewUnauthorized("Tenant required", "no tenant selected for a tenant-owned write")
	}
	if !scope.canAccess(scope.Current) {
		return 0, httperr.NewUnauthorized("Tenant not accessible", fmt.Sprintf("tenant %q is not accessible with this credential", scope.Current))
	}
	rows, err := tx.Select(ctx, TenantsTable, Criteria{Eq("name", scope.Current)}, nil, 1)
	if err != nil {
		return 0, err
	}
	if len(rows) > 0 {
		return rows[0].ID(), nil
	}
	if !create || !scope.Unrestricted() {
		return 0, httperr.NewNotFound("Object not found", fmt.Sprintf("tenant %q does not exist", scope.Current))
	}
	return tx.Insert(ctx, TenantsTable, Row{
		"name":       scope.Current,
		"created_at": time.Now().UnixMilli(),
	})
}

// accessibleTenantIDs maps the scope's accessible tenant names to ids. The
// second result is false for unrestricted scopes or tables that are not
// tenant-owned, meaning no tenant filter applies.
func (s *Store) accessibleTenantIDs(ctx context.Context, tx Tx, scope Scope, t *Table) ([]int64, bool, error) {
	if !t.TenantOwned || scope.Unrestricted() {
		return nil, false, nil
	}
	rows, err := tx.Select(ctx, TenantsTable, Criteria{InString("name", scope.Accessible)}, nil, 0)
	if err != nil {
		return nil, false, err
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID())
	}
	return ids, true, nil
}

func scopedCriteria(t *Table, crit Criteria, tenantIDs []int64, restricted bool) Criteria {
	if !t.TenantOwned || !restricted {
		return crit
	}
	out := make(Criteria, 0, len(crit)+1)
	out = append(out, crit...)
	return append(out, InInt64(ColTenantID, tenantIDs))
}

func cascadeDelete(ctx context.Context, tx Tx, t *Table, id int64) error {
	for _, c := range t.Cascades {
		children, err := tx.Select(ctx, c.Child, Criteria{Eq(c.Field, id)}, nil, 0)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := cascadeDelete(ctx, tx, c.Child, child.ID()); err != nil {
				return err
			}
		}
	}
	_, err := tx.Delete(ctx, t, id)
	return err
}

func notFound(t *Table, id int64) error {
	return httperr.NewNotFound("Object not found", fmt.Sprintf("%s %d does not exist", t.Name, id))
}

func coerceFault(err error) error {
	if _, ok := httperr.AsError(err); ok {
		return err
	}
	if httperr.IsBadRequest(err) {
		return err
	}
	return httperr.NewInternal("Internal error", "storage operation failed: "+err.Error())
}

func containsInt64(vs []int64, v int64) bool {
	for _, x := range vs {
		if x == v {
			return true
		}
	}
	return false
}
