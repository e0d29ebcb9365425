package registry

import (
	"fmt"

	"github.com/fleetgrid/fleetgrid/pkg/httperr"
)

// Scope is the resolved tenant visibility of one request: Current names the
// tenant writes go to (empty when no tenant is selected), Accessible the
// tenants reads may draw from. An empty Accessible together with an
// unrestricted credential means "see every tenant".
type Scope struct {
	Current      string
	Accessible   []string
	unrestricted bool
}

// Unrestricted reports whether reads see all tenants.
func (s Scope) Unrestricted() bool { return s.unrestricted }

func (s Scope) canAccess(tenant string) bool {
	if s.unrestricted {
		return true
	}
	for _, t := range s.Accessible {
		if t == tenant {
			return true
		}
	}
	return false
}

// UnrestrictedScope is the administrative scope with an optional current
// tenant selector.
func UnrestrictedScope(current string) Scope {
	return Scope{Current: current, unrestricted: true}
}

// Credential is the verified auth material the (external) controller layer
// hands in: either the unrestricted administrative kind, or a set of tenant
// names extracted from a verified token. Present is false when the credential
// artifact was syntactically absent, which is distinct from a credential that
// grants nothing.
type Credential struct {
	Present bool
	Admin   bool
	Tenants []string
}

// ResolveScope combines a credential with the out-of-band current-tenant
// selector. It fails closed: a missing credential, a credential granting no
// tenants, or a selector outside the granted set each yield an unauthorized
// failure.
func ResolveScope(cred Credential, selected string) (Scope, error) {
	if !cred.Present {
		return Scope{}, httperr.NewUnauthorized("Credential missing", "no credential supplied")
	}
	if cred.Admin {
		return UnrestrictedScope(selected), nil
	}
	if len(cred.Tenants) == 0 {
		return Scope{}, httperr.NewUnauthorized("No accessible tenants", "credential grants access to no tenant")
	}
	scope := Scope{Current: selected, Accessible: append([]string(nil), cred.Tenants...)}
	if selected != "" && !scope.canAccess(selected) {
		return Scope{}, httperr.NewUnauthorized("Tenant not accessible", fmt.Sprintf("tenant %q is not accessible with this credential", selected))
	}
	return scope, nil
}
