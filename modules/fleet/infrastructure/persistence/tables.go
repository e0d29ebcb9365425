// Package persistence binds the fleet entities to the generic record store:
// table definitions, row mapping, and the referential checks each write
// carries.
package persistence

import (
	"strings"

	"github.com/fleetgrid/fleetgrid/internal/registry"
	"github.com/fleetgrid/fleetgrid/modules/fleet/domain/types"
)

var (
	// Tenants is the shared tenant directory owned by the registry.
	Tenants = registry.TenantsTable

	APIKeys = &registry.Table{
		Name: "api_keys",
		Columns: []registry.Column{
			{Name: "token", Kind: registry.ColText},
			{Name: "label", Kind: registry.ColText},
			{Name: "admin", Kind: registry.ColBool},
			{Name: "tenants", Kind: registry.ColText},
			{Name: "created_at", Kind: registry.ColInt},
		},
		Unique: [][]string{{"token"}},
	}

	Hardware = &registry.Table{
		Name:        "hardware",
		TenantOwned: true,
		Columns: []registry.Column{
			{Name: "imei", Kind: registry.ColText},
			{Name: "phone", Kind: registry.ColText},
		},
		Unique: [][]string{{"imei"}},
	}

	Routes = &registry.Table{
		Name:        "routes",
		TenantOwned: true,
		Columns: []registry.Column{
			{Name: "name", Kind: registry.ColText},
			{Name: "description", Kind: registry.ColText},
		},
		Unique: [][]string{{"name"}},
	}

	Stops = &registry.Table{
		Name:        "stops",
		TenantOwned: true,
		Columns: []registry.Column{
			{Name: "name", Kind: registry.ColText},
			{Name: "route_id", Kind: registry.ColInt},
			{Name: "position", Kind: registry.ColInt},
			{Name: "lat", Kind: registry.ColFloat},
			{Name: "lon", Kind: registry.ColFloat},
		},
	}

	CarStates = &registry.Table{
		Name:        "car_states",
		TenantOwned: true,
		Columns: []registry.Column{
			{Name: "car_id", Kind: registry.ColInt},
			{Name: "status", Kind: registry.ColText},
			{Name: "timestamp", Kind: registry.ColInt},
		},
	}

	Cars = &registry.Table{
		Name:        "cars",
		TenantOwned: true,
		Columns: []registry.Column{
			{Name: "name", Kind: registry.ColText},
			{Name: "plate", Kind: registry.ColText},
			{Name: "hardware_id", Kind: registry.ColInt},
			{Name: "route_id", Kind: registry.ColInt},
		},
		Unique:   [][]string{{"plate"}},
		Cascades: []registry.Cascade{{Child: CarStates, Field: "car_id"}},
	}

	OrderStates = &registry.Table{
		Name:        "order_states",
		TenantOwned: true,
		Columns: []registry.Column{
			{Name: "order_id", Kind: registry.ColInt},
			{Name: "status", Kind: registry.ColText},
			{Name: "timestamp", Kind: registry.ColInt},
		},
	}

	Orders = &registry.Table{
		Name:        "orders",
		TenantOwned: true,
		Columns: []registry.Column{
			{Name: "car_id", Kind: registry.ColInt},
			{Name: "route_id", Kind: registry.ColInt},
			{Name: "label", Kind: registry.ColText},
			{Name: "timestamp", Kind: registry.ColInt},
			{Name: "completed_at", Kind: registry.ColInt},
		},
		Cascades: []registry.Cascade{{Child: OrderStates, Field: "order_id"}},
	}
)

// AllTables lists every table in schema-apply order.
func AllTables() []*registry.Table {
	return []*registry.Table{
		Tenants, APIKeys, Hardware, Routes, Stops,
		Cars, CarStates, Orders, OrderStates,
	}
}

func TenantFromRow(r registry.Row) types.Tenant {
	return types.Tenant{
		ID:        r.ID(),
		Name:      rowString(r, "name"),
		CreatedAt: rowInt(r, "created_at"),
	}
}

func APIKeyFromRow(r registry.Row) types.APIKey {
	return types.APIKey{
		ID:        r.ID(),
		Token:     rowString(r, "token"),
		Label:     rowString(r, "label"),
		Admin:     rowBool(r, "admin"),
		Tenants:   SplitTenantList(rowString(r, "tenants")),
		CreatedAt: rowInt(r, "created_at"),
	}
}

func APIKeyRow(k types.APIKey) registry.Row {
	return registry.Row{
		"token":      k.Token,
		"label":      k.Label,
		"admin":      k.Admin,
		"tenants":    JoinTenantList(k.Tenants),
		"created_at": k.CreatedAt,
	}
}

func HardwareFromRow(r registry.Row) types.Hardware {
	return types.Hardware{
		ID:    r.ID(),
		IMEI:  rowString(r, "imei"),
		Phone: rowString(r, "phone"),
	}
}

func HardwareRow(h types.Hardware) registry.Row {
	return registry.Row{"imei": h.IMEI, "phone": h.Phone}
}

func RouteFromRow(r registry.Row) types.Route {
	return types.Route{
		ID:          r.ID(),
		Name:        rowString(r, "name"),
		Description: rowString(r, "description"),
	}
}

func RouteRow(rt types.Route) registry.Row {
	return registry.Row{"name": rt.Name, "description": rt.Description}
}

func StopFromRow(r registry.Row) types.Stop {
	return types.Stop{
		ID:       r.ID(),
		Name:     rowString(r, "name"),
		RouteID:  rowInt(r, "route_id"),
		Position: rowInt(r, "position"),
		Lat:      rowFloat(r, "lat"),
		Lon:      rowFloat(r, "lon"),
	}
}

func StopRow(s types.Stop) registry.Row {
	return registry.Row{
		"name":     s.Name,
		"route_id": s.RouteID,
		"position": s.Position,
		"lat":      s.Lat,
		"lon":      s.Lon,
	}
}

func CarFromRow(r registry.Row) types.Car {
	return types.Car{
		ID:         r.ID(),
		Name:       rowString(r, "name"),
		Plate:      rowString(r, "plate"),
		HardwareID: rowInt(r, "hardware_id"),
		RouteID:    rowInt(r, "route_id"),
	}
}

func CarRow(c types.Car) registry.Row {
	return registry.Row{
		"name":        c.Name,
		"plate":       c.Plate,
		"hardware_id": c.HardwareID,
		"route_id":    c.RouteID,
	}
}

func OrderFromRow(r registry.Row) types.Order {
	return types.Order{
		ID:          r.ID(),
		CarID:       rowInt(r, "car_id"),
		RouteID:     rowInt(r, "route_id"),
		Label:       rowString(r, "label"),
		Timestamp:   rowInt(r, "timestamp"),
		CompletedAt: rowInt(r, "completed_at"),
	}
}

func OrderRow(o types.Order) registry.Row {
	return registry.Row{
		"car_id":       o.CarID,
		"route_id":     o.RouteID,
		"label":        o.Label,
		"timestamp":    o.Timestamp,
		"completed_at": o.CompletedAt,
	}
}

func CarStateFromRow(r registry.Row) types.CarState {
	return types.CarState{
		ID:        r.ID(),
		CarID:     rowInt(r, "car_id"),
		Status:    types.CarStatus(rowString(r, "status")),
		Timestamp: rowInt(r, "timestamp"),
	}
}

func CarStateRow(s types.CarState) registry.Row {
	return registry.Row{
		"car_id":    s.CarID,
		"status":    string(s.Status),
		"timestamp": s.Timestamp,
	}
}

func OrderStateFromRow(r registry.Row) types.OrderState {
	return types.OrderState{
		ID:        r.ID(),
		OrderID:   rowInt(r, "order_id"),
		Status:    types.OrderStatus(rowString(r, "status")),
		Timestamp: rowInt(r, "timestamp"),
	}
}

func OrderStateRow(s types.OrderState) registry.Row {
	return registry.Row{
		"order_id":  s.OrderID,
		"status":    string(s.Status),
		"timestamp": s.Timestamp,
	}
}

// SplitTenantList parses the api_keys.tenants comma list, dropping empties.
func SplitTenantList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func JoinTenantList(tenants []string) string {
	return strings.Join(tenants, ",")
}

func rowString(r registry.Row, field string) string {
	s, _ := r[field].(string)
	return s
}

func rowBool(r registry.Row, field string) bool {
	b, _ := r[field].(bool)
	return b
}

func rowInt(r registry.Row, field string) int64 {
	switch n := r[field].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func rowFloat(r registry.Row, field string) float64 {
	switch n := r[field].(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
