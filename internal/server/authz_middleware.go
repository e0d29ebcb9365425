package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fleetgrid/fleetgrid/internal/routing"
	"github.com/fleetgrid/fleetgrid/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		p, err := defaultAuthzModelPath()
		if err != nil {
			return nil, err
		}
		modelPath = p
	}

	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		p, err := defaultAuthzPolicyPath()
		if err != nil {
			return nil, err
		}
		policyPath = p
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}

	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

func defaultAuthzModelPath() (string, error) {
	path := "config/access/model.conf"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: authz model not found")
}

func defaultAuthzPolicyPath() (string, error) {
	path := "config/access/policy.csv"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: authz policy not found")
}

type authorizer interface {
	Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error)
}

func withAuthz(classifier *routing.Classifier, a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		if path == "/health" || path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		subject := authz.SubjectFromRoleSlug(requestRole(r.Context()))

		domain := authz.DomainGlobal
		if scope, ok := requestScope(r.Context()); ok && scope.Current != "" {
			domain = authz.DomainFromTenantID(scope.Current)
		}

		allowed, enforced, err := a.Authorize(subject, domain, object, action)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	fleetObjects := map[string]string{
		"cars":     authz.ObjectFleetCars,
		"orders":   authz.ObjectFleetOrders,
		"routes":   authz.ObjectFleetRoutes,
		"stops":    authz.ObjectFleetStops,
		"hardware": authz.ObjectFleetHardware,
	}

	for resource, object := range fleetObjects {
		base := "/fleet/api/" + resource
		switch {
		case path == base,
			pathMatchRouteTemplate(path, base+"/{id}"),
			pathMatchRouteTemplate(path, base+"/{id}/states"):
			if method == http.MethodGet {
				return object, authz.ActionRead, true
			}
			return object, authz.ActionWrite, true
		case pathMatchRouteTemplate(path, base+"/{id}/pause"),
			pathMatchRouteTemplate(path, base+"/{id}/unpause"):
			return object, authz.ActionWrite, true
		}
	}

	switch {
	case path == "/admin/api/tenants", pathMatchRouteTemplate(path, "/admin/api/tenants/{id}"):
		if method == http.MethodGet {
			return authz.ObjectAdminTenants, authz.ActionRead, true
		}
		return authz.ObjectAdminTenants, authz.ActionWrite, true
	case path == "/admin/api/api-keys":
		if method == http.MethodGet {
			return authz.ObjectAdminAPIKeys, authz.ActionRead, true
		}
		return authz.ObjectAdminAPIKeys, authz.ActionWrite, true
	}

	return "", "", false
}

func pathMatchRouteTemplate(path string, template string) bool {
	in := splitRouteSegments(path)
	want := splitRouteSegments(template)
	if len(in) != len(want) {
		return false
	}
	for i := range want {
		w := want[i]
		g := in[i]
		if g == "" {
			return false
		}
		if routeTemplateIsParamSegment(w) {
			continue
		}
		if g != w {
			return false
		}
	}
	return true
}

func splitRouteSegments(path string) []string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func routeTemplateIsParamSegment(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && len(s) > 2
}
