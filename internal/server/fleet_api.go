package server

import (
	"net/http"

	"github.com/fleetgrid/fleetgrid/internal/registry"
	"github.com/fleetgrid/fleetgrid/internal/routing"
	"github.com/fleetgrid/fleetgrid/modules/fleet/domain/types"
	"github.com/fleetgrid/fleetgrid/modules/fleet/services"
)

// apiHandlers bundles the fleet services behind the HTTP surface. Scope
// resolution happened upstream in withScope; every handler just reads it
// back from the context.
type apiHandlers struct {
	fleet     *services.FleetService
	carStates *services.CarStateService
	orders    *services.OrderService
}

func apiScope(w http.ResponseWriter, r *http.Request) (registry.Scope, bool) {
	scope, ok := requestScope(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "scope_missing", "scope missing")
	}
	return scope, ok
}

func (h *apiHandlers) listCars(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	cars, err := h.fleet.ListCars(r.Context(), scope)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, cars)
}

func (h *apiHandlers) createCar(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	var car types.Car
	if !decodeJSON(w, r, &car) {
		return
	}
	created, err := h.fleet.CreateCar(r.Context(), scope, car)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *apiHandlers) getCar(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/cars/{id}")
	if !ok {
		return
	}
	car, err := h.fleet.GetCar(r.Context(), scope, id)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

func (h *apiHandlers) updateCar(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/cars/{id}")
	if !ok {
		return
	}
	var car types.Car
	if !decodeJSON(w, r, &car) {
		return
	}
	car.ID = id
	updated, err := h.fleet.UpdateCar(r.Context(), scope, car)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *apiHandlers) deleteCar(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/cars/{id}")
	if !ok {
		return
	}
	if err := h.fleet.DeleteCar(r.Context(), scope, id); err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) listCarStates(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/cars/{id}/states")
	if !ok {
		return
	}
	states, err := h.carStates.List(r.Context(), scope, id, streamQueryFromRequest(r))
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	if states == nil {
		states = []types.CarState{}
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *apiHandlers) appendCarStates(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/cars/{id}/states")
	if !ok {
		return
	}
	var body struct {
		Statuses []string `json:"statuses"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	statuses := make([]types.CarStatus, 0, len(body.Statuses))
	for _, s := range body.Statuses {
		status, err := types.ParseCarStatus(s)
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "invalid_request", err.Error())
			return
		}
		statuses = append(statuses, status)
	}
	stored, err := h.carStates.Append(r.Context(), scope, id, statuses)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	if stored == nil {
		stored = []types.CarState{}
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *apiHandlers) setCarAction(status types.CarStatus) http.HandlerFunc {
	template := "/fleet/api/cars/{id}/pause"
	if status == types.CarNormal {
		template = "/fleet/api/cars/{id}/unpause"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := apiScope(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, template)
		if !ok {
			return
		}
		state, err := h.carStates.SetAction(r.Context(), scope, id, status)
		if err != nil {
			writeFault(w, r, routing.RouteClassInternalAPI, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func (h *apiHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	orders, err := h.fleet.ListOrders(r.Context(), scope)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *apiHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	var order types.Order
	if !decodeJSON(w, r, &order) {
		return
	}
	created, err := h.orders.Create(r.Context(), scope, order)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *apiHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/orders/{id}")
	if !ok {
		return
	}
	order, err := h.fleet.GetOrder(r.Context(), scope, id)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *apiHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/orders/{id}")
	if !ok {
		return
	}
	if err := h.fleet.DeleteOrder(r.Context(), scope, id); err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) listOrderStates(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/orders/{id}/states")
	if !ok {
		return
	}
	states, err := h.orders.ListStates(r.Context(), scope, id, streamQueryFromRequest(r))
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	if states == nil {
		states = []types.OrderState{}
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *apiHandlers) appendOrderStates(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/orders/{id}/states")
	if !ok {
		return
	}
	var body struct {
		Statuses []string `json:"statuses"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	statuses := make([]types.OrderStatus, 0, len(body.Statuses))
	for _, s := range body.Statuses {
		status, err := types.ParseOrderStatus(s)
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "invalid_request", err.Error())
			return
		}
		statuses = append(statuses, status)
	}
	stored, err := h.orders.AppendStates(r.Context(), scope, id, statuses)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	if stored == nil {
		stored = []types.OrderState{}
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *apiHandlers) listRoutes(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	routes, err := h.fleet.ListRoutes(r.Context(), scope)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

func (h *apiHandlers) createRoute(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	var rt types.Route
	if !decodeJSON(w, r, &rt) {
		return
	}
	created, err := h.fleet.CreateRoute(r.Context(), scope, rt)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *apiHandlers) getRoute(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/routes/{id}")
	if !ok {
		return
	}
	rt, err := h.fleet.GetRoute(r.Context(), scope, id)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (h *apiHandlers) updateRoute(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/routes/{id}")
	if !ok {
		return
	}
	var rt types.Route
	if !decodeJSON(w, r, &rt) {
		return
	}
	rt.ID = id
	updated, err := h.fleet.UpdateRoute(r.Context(), scope, rt)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *apiHandlers) deleteRoute(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/routes/{id}")
	if !ok {
		return
	}
	if err := h.fleet.DeleteRoute(r.Context(), scope, id); err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) listStops(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	stops, err := h.fleet.ListStops(r.Context(), scope)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, stops)
}

func (h *apiHandlers) createStop(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	var st types.Stop
	if !decodeJSON(w, r, &st) {
		return
	}
	created, err := h.fleet.CreateStop(r.Context(), scope, st)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *apiHandlers) getStop(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/stops/{id}")
	if !ok {
		return
	}
	st, err := h.fleet.GetStop(r.Context(), scope, id)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *apiHandlers) updateStop(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/stops/{id}")
	if !ok {
		return
	}
	var st types.Stop
	if !decodeJSON(w, r, &st) {
		return
	}
	st.ID = id
	updated, err := h.fleet.UpdateStop(r.Context(), scope, st)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *apiHandlers) deleteStop(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/stops/{id}")
	if !ok {
		return
	}
	if err := h.fleet.DeleteStop(r.Context(), scope, id); err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) listHardware(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	units, err := h.fleet.ListHardware(r.Context(), scope)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (h *apiHandlers) createHardware(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	var unit types.Hardware
	if !decodeJSON(w, r, &unit) {
		return
	}
	created, err := h.fleet.CreateHardware(r.Context(), scope, unit)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *apiHandlers) getHardware(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/hardware/{id}")
	if !ok {
		return
	}
	unit, err := h.fleet.GetHardware(r.Context(), scope, id)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (h *apiHandlers) updateHardware(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/hardware/{id}")
	if !ok {
		return
	}
	var unit types.Hardware
	if !decodeJSON(w, r, &unit) {
		return
	}
	unit.ID = id
	updated, err := h.fleet.UpdateHardware(r.Context(), scope, unit)
	if err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *apiHandlers) deleteHardware(w http.ResponseWriter, r *http.Request) {
	scope, ok := apiScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "/fleet/api/hardware/{id}")
	if !ok {
		return
	}
	if err := h.fleet.DeleteHardware(r.Context(), scope, id); err != nil {
		writeFault(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
