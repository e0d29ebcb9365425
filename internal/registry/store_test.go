package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetgrid/fleetgrid/pkg/httperr"
)

var (
	testStates = &Table{
		Name:        "test_states",
		TenantOwned: true,
		Columns: []Column{
			{Name: "car_id", Kind: ColInt},
			{Name: "status", Kind: ColText},
			{Name: "timestamp", Kind: ColInt},
		},
	}
	testCars = &Table{
		Name:        "test_cars",
		TenantOwned: true,
		Columns: []Column{
			{Name: "name", Kind: ColText},
			{Name: "plate", Kind: ColText},
		},
		Unique:   [][]string{{"plate"}},
		Cascades: []Cascade{{Child: testStates, Field: "car_id"}},
	}
)

func newTestStore(t *testing.T, tenants ...string) *Store {
	t.Helper()
	store := NewStore(NewMemoryEngine())
	ctx := context.Background()
	for _, name := range tenants {
		scope := UnrestrictedScope(name)
		if _, err := store.Add(ctx, scope, testCars, nil, AddOptions{CreateTenant: true}); err != nil {
			t.Fatalf("seed tenant %s: %v", name, err)
		}
	}
	return store
}

func clientScope(tenant string) Scope {
	return Scope{Current: tenant, Accessible: []string{tenant}}
}

func TestAddAssignsIDsAndTenant(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme")
	rows, err := store.Add(context.Background(), clientScope("acme"), testCars,
		[]Row{{"name": "bus-1", "plate": "A1"}, {"name": "bus-2", "plate": "A2"}}, AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("stored %d rows", len(rows))
	}
	if rows[0].ID() == 0 || rows[1].ID() == 0 || rows[0].ID() == rows[1].ID() {
		t.Fatalf("bad ids: %d %d", rows[0].ID(), rows[1].ID())
	}
	if rows[0].tenantID() == 0 {
		t.Fatal("tenant id not stamped")
	}
}

func TestAddUnknownFieldRejected(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme")
	_, err := store.Add(context.Background(), clientScope("acme"), testCars,
		[]Row{{"color": "red"}}, AddOptions{})
	if !httperr.IsBadRequest(err) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestAddBatchIsAtomic(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme")
	ctx := context.Background()
	scope := clientScope("acme")
	if _, err := store.Add(ctx, scope, testCars, []Row{{"name": "bus-1", "plate": "A1"}}, AddOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Second row collides on plate; the first must not survive.
	_, err := store.Add(ctx, scope, testCars,
		[]Row{{"name": "bus-2", "plate": "B2"}, {"name": "bus-3", "plate": "A1"}}, AddOptions{})
	if !httperr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	n, err := store.Count(ctx, scope, testCars, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d after failed batch, want 1", n)
	}
}

func TestAddChecksRejectBatch(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme")
	ctx := context.Background()
	scope := clientScope("acme")

	_, err := store.Add(ctx, scope, testStates,
		[]Row{{"car_id": int64(99), "status": "NORMAL", "timestamp": int64(1)}},
		AddOptions{Checks: []Check{RefCheck(testCars, 99)}})
	if !httperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	n, _ := store.Count(ctx, scope, testStates, nil)
	if n != 0 {
		t.Fatalf("state rows written despite failed check: %d", n)
	}
}

func TestTenantIsolation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme", "globex")
	ctx := context.Background()
	acme, globex := clientScope("acme"), clientScope("globex")

	added, err := store.Add(ctx, acme, testCars, []Row{{"name": "bus-1", "plate": "A1"}}, AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	carID := added[0].ID()

	rows, err := store.Get(ctx, globex, testCars, Query{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("foreign tenant sees %d rows", len(rows))
	}

	// Same plate in another tenant is not a duplicate.
	if _, err := store.Add(ctx, globex, testCars, []Row{{"name": "bus-x", "plate": "A1"}}, AddOptions{}); err != nil {
		t.Fatalf("cross-tenant plate rejected: %v", err)
	}

	if _, err := store.Update(ctx, globex, testCars, carID, Row{"name": "stolen", "plate": "Z9"}); !httperr.IsNotFound(err) {
		t.Fatalf("cross-tenant update: %v", err)
	}
	if err := store.Delete(ctx, globex, testCars, carID); !httperr.IsNotFound(err) {
		t.Fatalf("cross-tenant delete: %v", err)
	}
}

func TestImplicitTenantCreationIsAdminOnly(t *testing.T) {
	t.Parallel()

	store := NewStore(NewMemoryEngine())
	ctx := context.Background()

	scope := Scope{Current: "ghost", Accessible: []string{"ghost"}}
	_, err := store.Add(ctx, scope, testCars, []Row{{"name": "bus-1", "plate": "A1"}}, AddOptions{CreateTenant: true})
	if !httperr.IsNotFound(err) {
		t.Fatalf("restricted scope created a tenant: %v", err)
	}

	if _, err := store.Add(ctx, UnrestrictedScope("ghost"), testCars,
		[]Row{{"name": "bus-1", "plate": "A1"}}, AddOptions{CreateTenant: true}); err != nil {
		t.Fatalf("unrestricted create: %v", err)
	}
}

func TestUpdateReturnsReloadedRow(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme")
	ctx := context.Background()
	scope := clientScope("acme")

	added, err := store.Add(ctx, scope, testCars, []Row{{"name": "bus-1", "plate": "A1"}}, AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	updated, err := store.Update(ctx, scope, testCars, added[0].ID(), Row{"name": "bus-9", "plate": "A1"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated["name"] != "bus-9" || updated.ID() != added[0].ID() {
		t.Fatalf("updated row = %v", updated)
	}

	if _, err := store.Update(ctx, scope, testCars, 9999, Row{"name": "x", "plate": "Q"}); !httperr.IsNotFound(err) {
		t.Fatalf("missing id: %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme")
	ctx := context.Background()
	scope := clientScope("acme")

	cars, err := store.Add(ctx, scope, testCars, []Row{{"name": "bus-1", "plate": "A1"}}, AddOptions{})
	if err != nil {
		t.Fatalf("add car: %v", err)
	}
	carID := cars[0].ID()
	states := []Row{
		{"car_id": carID, "status": "NORMAL", "timestamp": int64(1)},
		{"car_id": carID, "status": "PAUSED", "timestamp": int64(2)},
	}
	if _, err := store.Add(ctx, scope, testStates, states, AddOptions{}); err != nil {
		t.Fatalf("add states: %v", err)
	}

	if err := store.Delete(ctx, scope, testCars, carID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, _ := store.Count(ctx, scope, testStates, nil)
	if n != 0 {
		t.Fatalf("%d state rows survived the cascade", n)
	}
}

func TestDeleteNOldestFirstWithIDTieBreak(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme")
	ctx := context.Background()
	scope := clientScope("acme")

	rows := []Row{
		{"car_id": int64(1), "status": "NORMAL", "timestamp": int64(10)},
		{"car_id": int64(1), "status": "PAUSED", "timestamp": int64(5)},
		{"car_id": int64(1), "status": "NORMAL", "timestamp": int64(5)},
		{"car_id": int64(1), "status": "PAUSED", "timestamp": int64(20)},
	}
	added, err := store.Add(ctx, scope, testStates, rows, AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	deleted, err := store.DeleteN(ctx, testStates, 2, Asc("timestamp"), Criteria{Eq("car_id", int64(1))})
	if err != nil {
		t.Fatalf("delete_n: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	left, err := store.Get(ctx, scope, testStates, Query{Sort: []Sort{Asc("timestamp")}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// The two timestamp-5 rows are the oldest and must be the ones removed.
	if len(left) != 2 || left[0].ID() != added[0].ID() || left[1].ID() != added[3].ID() {
		t.Fatalf("survivors = %v", left)
	}
}

func TestExists(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme")
	ctx := context.Background()
	scope := clientScope("acme")

	if _, err := store.Add(ctx, scope, testCars, []Row{{"name": "bus-1", "plate": "A1"}}, AddOptions{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	ok, err := store.Exists(ctx, scope, testCars, Criteria{Eq("plate", "A1")})
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}
	ok, err = store.Exists(ctx, scope, testCars, Criteria{Eq("plate", "Z9")})
	if err != nil || ok {
		t.Fatalf("phantom row: %v, %v", ok, err)
	}
}

func TestBrokenConnectionRetriesOnce(t *testing.T) {
	t.Parallel()

	engine := NewMemoryEngine()
	store := NewStore(engine)
	ctx := context.Background()
	scope := UnrestrictedScope("acme")

	engine.BreakConnection()
	rows, err := store.Add(ctx, scope, testCars, []Row{{"name": "bus-1", "plate": "A1"}}, AddOptions{CreateTenant: true})
	if err != nil {
		t.Fatalf("retry did not recover: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("stored %d rows", len(rows))
	}
	n, _ := store.Count(ctx, scope, testCars, nil)
	if n != 1 {
		t.Fatalf("count = %d, want exactly one write", n)
	}
}

func TestGetWaitResolvedByAdd(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme")
	ctx := context.Background()
	scope := clientScope("acme")

	var wg sync.WaitGroup
	var rows []Row
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		rows, err = store.Get(ctx, scope, testCars, Query{
			Criteria: Criteria{Eq("plate", "A1")},
			Wait:     true,
			Timeout:  2 * time.Second,
		})
	}()

	time.Sleep(20 * time.Millisecond)
	if _, aerr := store.Add(ctx, scope, testCars, []Row{{"name": "bus-1", "plate": "A1"}}, AddOptions{}); aerr != nil {
		t.Fatalf("add: %v", aerr)
	}
	wg.Wait()

	if err != nil {
		t.Fatalf("waiting get: %v", err)
	}
	if len(rows) != 1 || rows[0]["plate"] != "A1" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestGetWaitTimesOutEmpty(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme")
	rows, err := store.Get(context.Background(), clientScope("acme"), testCars, Query{
		Wait:    true,
		Timeout: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %v", rows)
	}
}

func TestGetWaitIgnoresForeignTenantInserts(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "acme", "globex")
	ctx := context.Background()

	var wg sync.WaitGroup
	var rows []Row
	wg.Add(1)
	go func() {
		defer wg.Done()
		rows, _ = store.Get(ctx, clientScope("acme"), testCars, Query{Wait: true, Timeout: 150 * time.Millisecond})
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := store.Add(ctx, clientScope("globex"), testCars, []Row{{"name": "bus-x", "plate": "G1"}}, AddOptions{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	wg.Wait()

	if len(rows) != 0 {
		t.Fatalf("waiter crossed tenants: %v", rows)
	}
}
