package registry

import (
	"testing"

	"github.com/fleetgrid/fleetgrid/pkg/httperr"
)

func TestResolveScope(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		cred      Credential
		selected  string
		wantErr   string
		wantUnres bool
	}{
		{name: "missing credential", cred: Credential{}, wantErr: "Credential missing"},
		{name: "admin unrestricted", cred: Credential{Present: true, Admin: true}, selected: "acme", wantUnres: true},
		{name: "no tenants granted", cred: Credential{Present: true}, wantErr: "No accessible tenants"},
		{name: "selector outside grant", cred: Credential{Present: true, Tenants: []string{"acme"}}, selected: "globex", wantErr: "Tenant not accessible"},
		{name: "selector inside grant", cred: Credential{Present: true, Tenants: []string{"acme", "globex"}}, selected: "globex"},
		{name: "no selector", cred: Credential{Present: true, Tenants: []string{"acme"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scope, err := ResolveScope(tc.cred, tc.selected)
			if tc.wantErr != "" {
				fe, ok := httperr.AsError(err)
				if !ok {
					t.Fatalf("expected structured failure, got %v", err)
				}
				if fe.Title() != tc.wantErr {
					t.Fatalf("title = %q, want %q", fe.Title(), tc.wantErr)
				}
				if !httperr.IsUnauthorized(err) {
					t.Fatalf("kind = %v, want unauthorized", fe.Kind())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if scope.Unrestricted() != tc.wantUnres {
				t.Fatalf("unrestricted = %v", scope.Unrestricted())
			}
			if scope.Current != tc.selected {
				t.Fatalf("current = %q, want %q", scope.Current, tc.selected)
			}
		})
	}
}

func TestScopeCanAccess(t *testing.T) {
	t.Parallel()

	s := Scope{Current: "acme", Accessible: []string{"acme", "globex"}}
	if !s.canAccess("globex") {
		t.Fatal("granted tenant rejected")
	}
	if s.canAccess("initech") {
		t.Fatal("ungranted tenant accepted")
	}
	if !UnrestrictedScope("").canAccess("anything") {
		t.Fatal("unrestricted scope rejected a tenant")
	}
}
