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
)

// OrderService is the order board: admission control for new active orders,
// the terminal-status lock on the order state stream, bounded state history
// and completion-order eviction of inactive orders.
type OrderService struct {
	records   ports.Records
	limits    Limits
	admission *AdmissionRule
	now       func() int64
}

func NewOrderService(records ports.Records, limits Limits, admission *AdmissionRule) *OrderService {
	return &OrderService{
		records:   records,
		limits:    limits,
		admission: admission,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Create admits and stores a new active order plus its initial TO_ACCEPT
// state. Admission fails with a conflict once the car's active maximum is
// reached or the configured rule denies it.
func (s *OrderService) Create(ctx context.Context, scope registry.Scope, order types.Order) (types.Order, error) {
	active, err := s.records.Count(ctx, scope, persistence.Orders, registry.Criteria{
		registry.Eq("car_id", order.CarID),
		registry.Eq("completed_at", int64(0)),
	})
	if err != nil {
		return types.Order{}, err
	}
	if s.limits.MaxActiveOrders > 0 && active >= int64(s.limits.MaxActiveOrders) {
		return types.Order{}, httperr.NewConflict("Active order limit reached",
			fmt.Sprintf("car %d already has %d active orders", order.CarID, active))
	}
	allowed, err := s.admission.Allow(map[string]any{
		"car_id": order.CarID,
		"active": active,
		"limit":  int64(s.limits.MaxActiveOrders),
		"tenant": scope.Current,
	})
	if err != nil {
		return types.Order{}, httperr.NewInternal("Internal error", err.Error())
	}
	if !allowed {
		return types.Order{}, httperr.NewConflict("Order not admitted",
			fmt.Sprintf("admission rule rejected a new order for car %d", order.CarID))
	}

	if order.Timestamp == 0 {
		order.Timestamp = s.now()
	}
	order.CompletedAt = 0
	checks := []registry.Check{registry.RefCheck(persistence.Cars, order.CarID)}
	if order.RouteID != 0 {
		checks = append(checks, registry.RefCheck(persistence.Routes, order.RouteID))
	}
	stored, err := s.records.Add(ctx, scope, persistence.Orders,
		[]registry.Row{persistence.OrderRow(order)}, registry.AddOptions{Checks: checks})
	if err != nil {
		return types.Order{}, err
	}
	created := persistence.OrderFromRow(stored[0])

	_, err = s.records.Add(ctx, scope, persistence.OrderStates, []registry.Row{
		persistence.OrderStateRow(types.OrderState{
			OrderID: created.ID, Status: types.OrderToAccept, Timestamp: created.Timestamp,
		}),
	}, registry.AddOptions{})
	if err != nil {
		return types.Order{}, err
	}
	return created, nil
}

// AppendStates stores a batch of statuses for one order in arrival order.
// Consecutive duplicates are merged away; any status following a terminal
// one, stored or within the batch, rejects the whole batch. The terminal lock
// is re-derived from storage, never from process memory.
func (s *OrderService) AppendStates(ctx context.Context, scope registry.Scope, orderID int64, statuses []types.OrderStatus) ([]types.OrderState, error) {
	order, err := s.loadOrder(ctx, scope, orderID)
	if err != nil {
		return nil, err
	}
	last, lastTS, err := s.lastStatus(ctx, scope, orderID)
	if err != nil {
		return nil, err
	}
	if last.Terminal() || !order.Active() {
		return nil, httperr.NewConflict("Terminal status reached",
			fmt.Sprintf("order %d is already %s", orderID, last))
	}

	ts := nextTimestamp(s.now(), lastTS)
	var rows []registry.Row
	var terminalAt int64
	for _, status := range statuses {
		if last.Terminal() {
			return nil, httperr.NewConflict("Terminal status reached",
				fmt.Sprintf("order %d batch continues past %s", orderID, last))
		}
		if status == last {
			continue
		}
		rows = append(rows, persistence.OrderStateRow(types.OrderState{
			OrderID: orderID, Status: status, Timestamp: ts,
		}))
		if status.Terminal() {
			terminalAt = ts
		}
		last = status
		ts++
	}
	if len(rows) == 0 {
		return nil, nil
	}

	stored, err := s.records.Add(ctx, scope, persistence.OrderStates, rows, registry.AddOptions{
		Checks: []registry.Check{registry.RefCheck(persistence.Orders, orderID)},
	})
	if err != nil {
		return nil, err
	}

	if terminalAt > 0 {
		order.CompletedAt = terminalAt
		if _, err := s.records.Update(ctx, scope, persistence.Orders, orderID, persistence.OrderRow(order)); err != nil {
			return nil, err
		}
		if err := s.evictInactive(ctx, scope, order.CarID); err != nil {
			return nil, err
		}
	}
	if err := s.evictStates(ctx, scope, orderID); err != nil {
		return nil, err
	}

	out := make([]types.OrderState, len(stored))
	for i, r := range stored {
		out[i] = persistence.OrderStateFromRow(r)
	}
	return out, nil
}

// ListStates returns the order's state stream, honoring since and last_n.
func (s *OrderService) ListStates(ctx context.Context, scope registry.Scope, orderID int64, q StreamQuery) ([]types.OrderState, error) {
	if _, err := s.loadOrder(ctx, scope, orderID); err != nil {
		return nil, err
	}
	rows, err := s.records.Get(ctx, scope, persistence.OrderStates, q.build(registry.Eq("order_id", orderID)))
	if err != nil {
		return nil, err
	}
	rows = q.shape(rows)
	out := make([]types.OrderState, len(rows))
	for i, r := range rows {
		out[i] = persistence.OrderStateFromRow(r)
	}
	return out, nil
}

func (s *OrderService) loadOrder(ctx context.Context, scope registry.Scope, orderID int64) (types.Order, error) {
	rows, err := s.records.Get(ctx, scope, persistence.Orders, registry.Query{
		Criteria: registry.Criteria{registry.Eq(registry.ColID, orderID)},
		Limit:    1,
	})
	if err != nil {
		return types.Order{}, err
	}
	if len(rows) == 0 {
		return types.Order{}, httperr.NewNotFound("Object not found",
			fmt.Sprintf("orders %d does not exist", orderID))
	}
	return persistence.OrderFromRow(rows[0]), nil
}

func (s *OrderService) lastStatus(ctx context.Context, scope registry.Scope, orderID int64) (types.OrderStatus, int64, error) {
	rows, err := s.records.Get(ctx, scope, persistence.OrderStates, registry.Query{
		Criteria: registry.Criteria{registry.Eq("order_id", orderID)},
		Sort:     []registry.Sort{registry.Desc("timestamp")},
		Limit:    1,
	})
	if err != nil {
		return "", 0, err
	}
	if len(rows) == 0 {
		return "", 0, nil
	}
	state := persistence.OrderStateFromRow(rows[0])
	return state.Status, state.Timestamp, nil
}

func (s *OrderService) evictStates(ctx context.Context, scope registry.Scope, orderID int64) error {
	if s.limits.MaxOrderStates <= 0 {
		return nil
	}
	crit := registry.Criteria{registry.Eq("order_id", orderID)}
	n, err := s.records.Count(ctx, scope, persistence.OrderStates, crit)
	if err != nil {
		return err
	}
	excess := int(n) - s.limits.MaxOrderStates
	if excess <= 0 {
		return nil
	}
	_, err = s.records.DeleteN(ctx, persistence.OrderStates, excess, registry.Asc("timestamp"), crit)
	return err
}

// evictInactive trims completed orders for a car to the configured maximum,
// earliest completed first. Completion order decides, not creation order.
func (s *OrderService) evictInactive(ctx context.Context, scope registry.Scope, carID int64) error {
	if s.limits.MaxInactiveOrders <= 0 {
		return nil
	}
	crit := registry.Criteria{
		registry.Eq("car_id", carID),
		registry.Ne("completed_at", int64(0)),
	}
	n, err := s.records.Count(ctx, scope, persistence.Orders, crit)
	if err != nil {
		return err
	}
	excess := int(n) - s.limits.MaxInactiveOrders
	if excess <= 0 {
		return nil
	}
	_, err = s.records.DeleteN(ctx, persistence.Orders, excess, registry.Asc("completed_at"), crit)
	return err
}
