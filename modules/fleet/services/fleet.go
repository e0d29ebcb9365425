package services

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetgrid/fleetgrid/internal/registry"
	"github.com/fleetgrid/fleetgrid/modules/fleet/domain/ports"
	"github.com/fleetgrid/fleetgrid/modules/fleet/domain/types"
	"github.com/fleetgrid/fleetgrid/modules/fleet/infrastructure/persistence"
	"github.com/fleetgrid/fleetgrid/pkg/httperr"
	"github.com/fleetgrid/fleetgrid/pkg/uuidv7"
)

// FleetService is the entity CRUD layer: referential checks on writes and
// the referenced-by guards that turn unsafe deletes into conflicts.
type FleetService struct {
	records ports.Records
	now     func() int64
}

func NewFleetService(records ports.Records) *FleetService {
	return &FleetService{
		records: records,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

func (s *FleetService) CreateHardware(ctx context.Context, scope registry.Scope, h types.Hardware) (types.Hardware, error) {
	stored, err := s.records.Add(ctx, scope, persistence.Hardware,
		[]registry.Row{persistence.HardwareRow(h)}, registry.AddOptions{})
	if err != nil {
		return types.Hardware{}, err
	}
	return persistence.HardwareFromRow(stored[0]), nil
}

func (s *FleetService) UpdateHardware(ctx context.Context, scope registry.Scope, h types.Hardware) (types.Hardware, error) {
	row, err := s.records.Update(ctx, scope, persistence.Hardware, h.ID, persistence.HardwareRow(h))
	if err != nil {
		return types.Hardware{}, err
	}
	return persistence.HardwareFromRow(row), nil
}

// DeleteHardware rejects removal while any car references the unit.
func (s *FleetService) DeleteHardware(ctx context.Context, scope registry.Scope, id int64) error {
	used, err := s.records.Exists(ctx, scope, persistence.Cars, registry.Criteria{registry.Eq("hardware_id", id)})
	if err != nil {
		return err
	}
	if used {
		return httperr.NewConflict("Cannot delete object",
			fmt.Sprintf("hardware %d is referenced by a car", id))
	}
	return s.records.Delete(ctx, scope, persistence.Hardware, id)
}

func (s *FleetService) CreateRoute(ctx context.Context, scope registry.Scope, rt types.Route) (types.Route, error) {
	stored, err := s.records.Add(ctx, scope, persistence.Routes,
		[]registry.Row{persistence.RouteRow(rt)}, registry.AddOptions{})
	if err != nil {
		return types.Route{}, err
	}
	return persistence.RouteFromRow(stored[0]), nil
}

func (s *FleetService) UpdateRoute(ctx context.Context, scope registry.Scope, rt types.Route) (types.Route, error) {
	row, err := s.records.Update(ctx, scope, persistence.Routes, rt.ID, persistence.RouteRow(rt))
	if err != nil {
		return types.Route{}, err
	}
	return persistence.RouteFromRow(row), nil
}

// DeleteRoute rejects removal while cars, stops or orders reference the
// route; route references are hard dependencies, never cascaded.
func (s *FleetService) DeleteRoute(ctx context.Context, scope registry.Scope, id int64) error {
	for _, ref := range []struct {
		table *registry.Table
		what  string
	}{
		{persistence.Cars, "a car"},
		{persistence.Stops, "a stop"},
		{persistence.Orders, "an order"},
	} {
		used, err := s.records.Exists(ctx, scope, ref.table, registry.Criteria{registry.Eq("route_id", id)})
		if err != nil {
			return err
		}
		if used {
			return httperr.NewConflict("Cannot delete object",
				fmt.Sprintf("route %d is referenced by %s", id, ref.what))
		}
	}
	return s.records.Delete(ctx, scope, persistence.Routes, id)
}

func (s *FleetService) CreateStop(ctx context.Context, scope registry.Scope, st types.Stop) (types.Stop, error) {
	stored, err := s.records.Add(ctx, scope, persistence.Stops,
		[]registry.Row{persistence.StopRow(st)}, registry.AddOptions{
			Checks: []registry.Check{registry.RefCheck(persistence.Routes, st.RouteID)},
		})
	if err != nil {
		return types.Stop{}, err
	}
	return persistence.StopFromRow(stored[0]), nil
}

func (s *FleetService) UpdateStop(ctx context.Context, scope registry.Scope, st types.Stop) (types.Stop, error) {
	row, err := s.records.Update(ctx, scope, persistence.Stops, st.ID, persistence.StopRow(st),
		registry.RefCheck(persistence.Routes, st.RouteID))
	if err != nil {
		return types.Stop{}, err
	}
	return persistence.StopFromRow(row), nil
}

func (s *FleetService) DeleteStop(ctx context.Context, scope registry.Scope, id int64) error {
	return s.records.Delete(ctx, scope, persistence.Stops, id)
}

func (s *FleetService) CreateCar(ctx context.Context, scope registry.Scope, c types.Car) (types.Car, error) {
	stored, err := s.records.Add(ctx, scope, persistence.Cars,
		[]registry.Row{persistence.CarRow(c)}, registry.AddOptions{Checks: carChecks(c)})
	if err != nil {
		return types.Car{}, err
	}
	return persistence.CarFromRow(stored[0]), nil
}

func (s *FleetService) UpdateCar(ctx context.Context, scope registry.Scope, c types.Car) (types.Car, error) {
	row, err := s.records.Update(ctx, scope, persistence.Cars, c.ID, persistence.CarRow(c), carChecks(c)...)
	if err != nil {
		return types.Car{}, err
	}
	return persistence.CarFromRow(row), nil
}

// DeleteCar rejects removal while orders reference the car; its state stream
// cascades with it.
func (s *FleetService) DeleteCar(ctx context.Context, scope registry.Scope, id int64) error {
	used, err := s.records.Exists(ctx, scope, persistence.Orders, registry.Criteria{registry.Eq("car_id", id)})
	if err != nil {
		return err
	}
	if used {
		return httperr.NewConflict("Cannot delete object",
			fmt.Sprintf("car %d is referenced by an order", id))
	}
	return s.records.Delete(ctx, scope, persistence.Cars, id)
}

// DeleteOrder removes the order and its state stream.
func (s *FleetService) DeleteOrder(ctx context.Context, scope registry.Scope, id int64) error {
	return s.records.Delete(ctx, scope, persistence.Orders, id)
}

func (s *FleetService) GetHardware(ctx context.Context, scope registry.Scope, id int64) (types.Hardware, error) {
	row, err := s.getOne(ctx, scope, persistence.Hardware, id)
	if err != nil {
		return types.Hardware{}, err
	}
	return persistence.HardwareFromRow(row), nil
}

func (s *FleetService) ListHardware(ctx context.Context, scope registry.Scope) ([]types.Hardware, error) {
	rows, err := s.records.Get(ctx, scope, persistence.Hardware, registry.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]types.Hardware, 0, len(rows))
	for _, r := range rows {
		out = append(out, persistence.HardwareFromRow(r))
	}
	return out, nil
}

func (s *FleetService) GetRoute(ctx context.Context, scope registry.Scope, id int64) (types.Route, error) {
	row, err := s.getOne(ctx, scope, persistence.Routes, id)
	if err != nil {
		return types.Route{}, err
	}
	return persistence.RouteFromRow(row), nil
}

func (s *FleetService) ListRoutes(ctx context.Context, scope registry.Scope) ([]types.Route, error) {
	rows, err := s.records.Get(ctx, scope, persistence.Routes, registry.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]types.Route, 0, len(rows))
	for _, r := range rows {
		out = append(out, persistence.RouteFromRow(r))
	}
	return out, nil
}

func (s *FleetService) GetStop(ctx context.Context, scope registry.Scope, id int64) (types.Stop, error) {
	row, err := s.getOne(ctx, scope, persistence.Stops, id)
	if err != nil {
		return types.Stop{}, err
	}
	return persistence.StopFromRow(row), nil
}

// ListStops orders by route then position so the result reads as itineraries.
func (s *FleetService) ListStops(ctx context.Context, scope registry.Scope) ([]types.Stop, error) {
	rows, err := s.records.Get(ctx, scope, persistence.Stops, registry.Query{
		Sort: []registry.Sort{registry.Asc("route_id"), registry.Asc("position")},
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.Stop, 0, len(rows))
	for _, r := range rows {
		out = append(out, persistence.StopFromRow(r))
	}
	return out, nil
}

func (s *FleetService) GetCar(ctx context.Context, scope registry.Scope, id int64) (types.Car, error) {
	row, err := s.getOne(ctx, scope, persistence.Cars, id)
	if err != nil {
		return types.Car{}, err
	}
	return persistence.CarFromRow(row), nil
}

func (s *FleetService) ListCars(ctx context.Context, scope registry.Scope) ([]types.Car, error) {
	rows, err := s.records.Get(ctx, scope, persistence.Cars, registry.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]types.Car, 0, len(rows))
	for _, r := range rows {
		out = append(out, persistence.CarFromRow(r))
	}
	return out, nil
}

func (s *FleetService) GetOrder(ctx context.Context, scope registry.Scope, id int64) (types.Order, error) {
	row, err := s.getOne(ctx, scope, persistence.Orders, id)
	if err != nil {
		return types.Order{}, err
	}
	return persistence.OrderFromRow(row), nil
}

func (s *FleetService) ListOrders(ctx context.Context, scope registry.Scope) ([]types.Order, error) {
	rows, err := s.records.Get(ctx, scope, persistence.Orders, registry.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]types.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, persistence.OrderFromRow(r))
	}
	return out, nil
}

func (s *FleetService) ListTenants(ctx context.Context, scope registry.Scope) ([]types.Tenant, error) {
	if !scope.Unrestricted() {
		return nil, httperr.NewUnauthorized("Tenant not accessible", "tenant listing requires an unrestricted credential")
	}
	rows, err := s.records.Get(ctx, scope, persistence.Tenants, registry.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]types.Tenant, 0, len(rows))
	for _, r := range rows {
		out = append(out, persistence.TenantFromRow(r))
	}
	return out, nil
}

func (s *FleetService) getOne(ctx context.Context, scope registry.Scope, t *registry.Table, id int64) (registry.Row, error) {
	rows, err := s.records.Get(ctx, scope, t, registry.Query{
		Criteria: registry.Criteria{registry.Eq(registry.ColID, id)},
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, httperr.NewNotFound("Object not found",
			fmt.Sprintf("%s %d does not exist", t.Name, id))
	}
	return rows[0], nil
}

func carChecks(c types.Car) []registry.Check {
	var checks []registry.Check
	if c.HardwareID != 0 {
		checks = append(checks, registry.RefCheck(persistence.Hardware, c.HardwareID))
	}
	if c.RouteID != 0 {
		checks = append(checks, registry.RefCheck(persistence.Routes, c.RouteID))
	}
	return checks
}

// CreateTenant explicitly materializes a tenant. Unrestricted scopes only;
// everyone else gets tenants implicitly through admin-created API keys.
func (s *FleetService) CreateTenant(ctx context.Context, scope registry.Scope, name string) (types.Tenant, error) {
	if !scope.Unrestricted() {
		return types.Tenant{}, httperr.NewUnauthorized("Tenant not accessible", "tenant creation requires an unrestricted credential")
	}
	stored, err := s.records.Add(ctx, scope, persistence.Tenants, []registry.Row{{
		"name":       name,
		"created_at": s.now(),
	}}, registry.AddOptions{})
	if err != nil {
		return types.Tenant{}, err
	}
	return persistence.TenantFromRow(stored[0]), nil
}

// DeleteTenant rejects removal while the tenant still owns any record in any
// tenant-owned table.
func (s *FleetService) DeleteTenant(ctx context.Context, scope registry.Scope, id int64) error {
	if !scope.Unrestricted() {
		return httperr.NewUnauthorized("Tenant not accessible", "tenant deletion requires an unrestricted credential")
	}
	for _, t := range persistence.AllTables() {
		if !t.TenantOwned {
			continue
		}
		owned, err := s.records.Exists(ctx, scope, t, registry.Criteria{registry.Eq(registry.ColTenantID, id)})
		if err != nil {
			return err
		}
		if owned {
			return httperr.NewConflict("Cannot delete object",
				fmt.Sprintf("tenant %d still owns %s records", id, t.Name))
		}
	}
	return s.records.Delete(ctx, scope, persistence.Tenants, id)
}

// CreateAPIKey issues a time-ordered token for the given grants.
func (s *FleetService) CreateAPIKey(ctx context.Context, scope registry.Scope, label string, admin bool, tenants []string) (types.APIKey, error) {
	if !scope.Unrestricted() {
		return types.APIKey{}, httperr.NewUnauthorized("Tenant not accessible", "API key issuance requires an unrestricted credential")
	}
	token, err := uuidv7.NewString()
	if err != nil {
		return types.APIKey{}, httperr.NewInternal("Internal error", "token generation failed: "+err.Error())
	}
	stored, err := s.records.Add(ctx, scope, persistence.APIKeys, []registry.Row{
		persistence.APIKeyRow(types.APIKey{
			Token:     token,
			Label:     label,
			Admin:     admin,
			Tenants:   tenants,
			CreatedAt: s.now(),
		}),
	}, registry.AddOptions{})
	if err != nil {
		return types.APIKey{}, err
	}
	return persistence.APIKeyFromRow(stored[0]), nil
}

// LookupCredential resolves a bearer token to the credential signals the
// scope resolver consumes. An unknown token is a present-but-empty
// credential, not a missing one.
func (s *FleetService) LookupCredential(ctx context.Context, token string) (registry.Credential, error) {
	if token == "" {
		return registry.Credential{}, nil
	}
	rows, err := s.records.Get(ctx, registry.UnrestrictedScope(""), persistence.APIKeys, registry.Query{
		Criteria: registry.Criteria{registry.Eq("token", token)},
		Limit:    1,
	})
	if err != nil {
		return registry.Credential{}, err
	}
	if len(rows) == 0 {
		return registry.Credential{Present: true}, nil
	}
	key := persistence.APIKeyFromRow(rows[0])
	return registry.Credential{Present: true, Admin: key.Admin, Tenants: key.Tenants}, nil
}
