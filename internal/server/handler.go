package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fleetgrid/fleetgrid/internal/registry"
	"github.com/fleetgrid/fleetgrid/internal/routing"
	"github.com/fleetgrid/fleetgrid/modules/fleet/domain/types"
	"github.com/fleetgrid/fleetgrid/modules/fleet/services"
)

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

type HandlerOptions struct {
	Engine        registry.Engine
	Limits        *services.Limits
	AdmissionRule string
	WaitTimeout   time.Duration
	Authorizer    authorizer
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := defaultAllowlistPath()
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}

	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}

	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	engine := opts.Engine
	if engine == nil {
		pg, err := registry.NewPGEngine(context.Background(), dbDSNFromEnv())
		if err != nil {
			return nil, err
		}
		engine = pg
	}

	store := registry.NewStore(engine)
	waitTimeout := opts.WaitTimeout
	if waitTimeout == 0 {
		waitTimeout = waitTimeoutFromEnv()
	}
	store.SetDefaultWait(waitTimeout)

	limits := limitsFromEnv()
	if opts.Limits != nil {
		limits = *opts.Limits
	}

	rule := opts.AdmissionRule
	if rule == "" {
		rule = os.Getenv("FLEET_ADMISSION_RULE")
	}

	fleet := services.NewFleetService(store)
	carStates := services.NewCarStateService(store, limits)
	orders := services.NewOrderService(store, limits, services.NewAdmissionRule(rule))

	authorizer := opts.Authorizer
	if authorizer == nil {
		az, err := loadAuthorizer()
		if err != nil {
			return nil, err
		}
		authorizer = az
	}

	h := &apiHandlers{fleet: fleet, carStates: carStates, orders: orders}

	router := routing.NewRouter(classifier)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/cars", http.HandlerFunc(h.listCars))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/fleet/api/cars", http.HandlerFunc(h.createCar))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/cars/{id}", http.HandlerFunc(h.getCar))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPut, "/fleet/api/cars/{id}", http.HandlerFunc(h.updateCar))
	router.Handle(routing.RouteClassInternalAPI, http.MethodDelete, "/fleet/api/cars/{id}", http.HandlerFunc(h.deleteCar))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/cars/{id}/states", http.HandlerFunc(h.listCarStates))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/fleet/api/cars/{id}/states", http.HandlerFunc(h.appendCarStates))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/fleet/api/cars/{id}/pause", h.setCarAction(types.CarPaused))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/fleet/api/cars/{id}/unpause", h.setCarAction(types.CarNormal))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/orders", http.HandlerFunc(h.listOrders))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/fleet/api/orders", http.HandlerFunc(h.createOrder))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/orders/{id}", http.HandlerFunc(h.getOrder))
	router.Handle(routing.RouteClassInternalAPI, http.MethodDelete, "/fleet/api/orders/{id}", http.HandlerFunc(h.deleteOrder))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/orders/{id}/states", http.HandlerFunc(h.listOrderStates))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/fleet/api/orders/{id}/states", http.HandlerFunc(h.appendOrderStates))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/routes", http.HandlerFunc(h.listRoutes))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/fleet/api/routes", http.HandlerFunc(h.createRoute))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/routes/{id}", http.HandlerFunc(h.getRoute))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPut, "/fleet/api/routes/{id}", http.HandlerFunc(h.updateRoute))
	router.Handle(routing.RouteClassInternalAPI, http.MethodDelete, "/fleet/api/routes/{id}", http.HandlerFunc(h.deleteRoute))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/stops", http.HandlerFunc(h.listStops))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/fleet/api/stops", http.HandlerFunc(h.createStop))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/stops/{id}", http.HandlerFunc(h.getStop))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPut, "/fleet/api/stops/{id}", http.HandlerFunc(h.updateStop))
	router.Handle(routing.RouteClassInternalAPI, http.MethodDelete, "/fleet/api/stops/{id}", http.HandlerFunc(h.deleteStop))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/hardware", http.HandlerFunc(h.listHardware))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/fleet/api/hardware", http.HandlerFunc(h.createHardware))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/fleet/api/hardware/{id}", http.HandlerFunc(h.getHardware))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPut, "/fleet/api/hardware/{id}", http.HandlerFunc(h.updateHardware))
	router.Handle(routing.RouteClassInternalAPI, http.MethodDelete, "/fleet/api/hardware/{id}", http.HandlerFunc(h.deleteHardware))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/admin/api/tenants", http.HandlerFunc(h.listTenants))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/admin/api/tenants", http.HandlerFunc(h.createTenant))
	router.Handle(routing.RouteClassInternalAPI, http.MethodDelete, "/admin/api/tenants/{id}", http.HandlerFunc(h.deleteTenant))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/admin/api/api-keys", http.HandlerFunc(h.createAPIKey))

	return withScope(fleet, classifier, withAuthz(classifier, authorizer, router)), nil
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(err)
	}
	return h
}

func defaultAllowlistPath() (string, error) {
	path := "config/routing/allowlist.yaml"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: allowlist not found")
}
