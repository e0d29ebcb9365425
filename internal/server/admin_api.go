package server

import (
	"net/http"

	"github.com/fleetgrid/fleetgrid/internal/routing"
)

func (h *apiHandlers) listTenants(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	tenants, err := h.fleet.ListTenants(r.Context(), scope)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *apiHandlers) createTenant(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "invalid_request", "tenant name is required")
		return
	}
	created, err := h.fleet.CreateTenant(r.Context(), scope, body.Name)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *apiHandlers) deleteTenant(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/admin/api/tenants/{id}")
	if !ok {
		return
	}
	if err := h.fleet.DeleteTenant(r.Context(), scope, id); err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createAPIKey issues a bearer credential. The token is only ever returned
// here; lookups later on match it verbatim.
func (h *apiHandlers) createAPIKey(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	var body struct {
		Label   string   `json:"label"`
		Admin   bool     `json:"admin"`
		Tenants []string `json:"tenants"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	created, err := h.fleet.CreateAPIKey(r.Context(), scope, body.Label, body.Admin, body.Tenants)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
