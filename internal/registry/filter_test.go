package registry

import "testing"

func TestCriteriaMatches(t *testing.T) {
	t.Parallel()

	row := Row{"id": int64(7), "name": "alpha", "position": int64(3), "lat": 52.5, "admin": true}

	cases := []struct {
		name string
		crit Criteria
		want bool
	}{
		{"empty matches all", nil, true},
		{"eq string", Criteria{Eq("name", "alpha")}, true},
		{"ne string", Criteria{Ne("name", "beta")}, true},
		{"lt int", Criteria{Lt("position", int64(5))}, true},
		{"ge float", Criteria{Ge("lat", 52.5)}, true},
		{"gt fails", Criteria{Gt("position", int64(3))}, false},
		{"bool eq", Criteria{Eq("admin", true)}, true},
		{"in int64 hit", Criteria{InInt64("id", []int64{1, 7})}, true},
		{"in int64 miss", Criteria{InInt64("id", []int64{1, 2})}, false},
		{"in empty matches nothing", Criteria{InInt64("id", nil)}, false},
		{"in string", Criteria{InString("name", []string{"alpha"})}, true},
		{"conjunction", Criteria{Eq("name", "alpha"), Le("position", int64(3))}, true},
		{"conjunction one fails", Criteria{Eq("name", "alpha"), Gt("position", int64(9))}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.crit.Matches(row); got != tc.want {
				t.Fatalf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSortRowsTieBreaksByID(t *testing.T) {
	t.Parallel()

	rows := []Row{
		{"id": int64(3), "timestamp": int64(100)},
		{"id": int64(1), "timestamp": int64(100)},
		{"id": int64(2), "timestamp": int64(50)},
	}
	SortRows(rows, []Sort{Asc("timestamp")})
	got := []int64{rows[0].ID(), rows[1].ID(), rows[2].ID()}
	want := []int64{2, 1, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	SortRows(rows, []Sort{Desc("timestamp")})
	if rows[0].ID() != 1 || rows[1].ID() != 3 || rows[2].ID() != 2 {
		t.Fatalf("desc order = %v %v %v", rows[0].ID(), rows[1].ID(), rows[2].ID())
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	rows := []Row{{"id": int64(1)}, {"id": int64(2)}, {"id": int64(3)}}
	if got := Truncate(rows, 2); len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got := Truncate(rows, 0); len(got) != 3 {
		t.Fatalf("limit 0 should be unlimited, len = %d", len(got))
	}
	if got := Truncate(rows, 10); len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestValidateRow(t *testing.T) {
	t.Parallel()

	table := &Table{
		Name:        "cars",
		TenantOwned: true,
		Columns:     []Column{{Name: "name", Kind: ColText}},
	}
	if err := table.validateRow(Row{"name": "bus-1", "id": int64(4), "tenant_id": int64(1)}); err != nil {
		t.Fatalf("valid row rejected: %v", err)
	}
	if err := table.validateRow(Row{"color": "red"}); err == nil {
		t.Fatal("unknown field accepted")
	}
}
