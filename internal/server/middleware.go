package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/fleetgrid/fleetgrid/internal/registry"
	"github.com/fleetgrid/fleetgrid/internal/routing"
	"github.com/fleetgrid/fleetgrid/pkg/authz"
)

type credentialLookup interface {
	LookupCredential(ctx context.Context, token string) (registry.Credential, error)
}

// withScope authenticates the request and resolves its tenant scope. Every
// API route below this middleware can assume a scope is present in the
// context; health probes bypass it.
func withScope(creds credentialLookup, classifier *routing.Classifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		cred, err := creds.LookupCredential(r.Context(), bearerToken(r))
		if err != nil {
			writeFault(w, r, rc, err)
			return
		}

		scope, err := registry.ResolveScope(cred, tenantSelector(r))
		if err != nil {
			writeFault(w, r, rc, err)
			return
		}

		role := authz.RoleClient
		if cred.Admin {
			role = authz.RoleAdmin
		}

		ctx := withRequestScope(r.Context(), scope)
		ctx = withRequestRole(ctx, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// tenantSelector reads the out-of-band current-tenant choice: the tenant
// cookie wins, the X-Tenant header is the fallback for cookie-less clients.
func tenantSelector(r *http.Request) string {
	if c, err := r.Cookie("tenant"); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.Header.Get("X-Tenant"))
}
