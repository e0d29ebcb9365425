// Package services implements the fleet stream policies on top of the record
// store: transition validation, terminal locks, history eviction and order
// admission.
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

// CarStateService appends to the car action-status stream. Batch appends
// merge consecutive duplicates away; the single-action pause/unpause path
// reports a duplicate as a conflict instead.
type CarStateService struct {
	records ports.Records
	limits  Limits
	now     func() int64
}

func NewCarStateService(records ports.Records, limits Limits) *CarStateService {
	return &CarStateService{
		records: records,
		limits:  limits,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Append stores a batch of statuses for one car in arrival order. A status
// equal to the immediately preceding one (stored or earlier in the batch) is
// dropped, not stored. Returns only the rows actually stored.
func (s *CarStateService) Append(ctx context.Context, scope registry.Scope, carID int64, statuses []types.CarStatus) ([]types.CarState, error) {
	car, err := s.loadCar(ctx, scope, carID)
	if err != nil {
		return nil, err
	}
	last, lastTS, err := s.lastStatus(ctx, scope, carID)
	if err != nil {
		return nil, err
	}

	ts := nextTimestamp(s.now(), lastTS)
	var rows []registry.Row
	for _, status := range statuses {
		if status == last {
			continue
		}
		rows = append(rows, persistence.CarStateRow(types.CarState{
			CarID: carID, Status: status, Timestamp: ts,
		}))
		last = status
		ts++
	}
	if len(rows) == 0 {
		return nil, nil
	}

	stored, err := s.records.Add(ctx, scope, persistence.CarStates, rows, registry.AddOptions{
		Checks: []registry.Check{registry.RefCheck(persistence.Cars, carID)},
	})
	if err != nil {
		return nil, err
	}
	if err := s.evict(ctx, scope, car); err != nil {
		return nil, err
	}
	out := make([]types.CarState, len(stored))
	for i, r := range stored {
		out[i] = persistence.CarStateFromRow(r)
	}
	return out, nil
}

// SetAction is the pause/unpause entry point: a status equal to the car's
// current one is a reported conflict, not a silent merge.
func (s *CarStateService) SetAction(ctx context.Context, scope registry.Scope, carID int64, status types.CarStatus) (types.CarState, error) {
	car, err := s.loadCar(ctx, scope, carID)
	if err != nil {
		return types.CarState{}, err
	}
	last, lastTS, err := s.lastStatus(ctx, scope, carID)
	if err != nil {
		return types.CarState{}, err
	}
	if status == last {
		return types.CarState{}, httperr.NewConflict("Conflicting state",
			fmt.Sprintf("car %d is already %s", carID, status))
	}

	stored, err := s.records.Add(ctx, scope, persistence.CarStates, []registry.Row{
		persistence.CarStateRow(types.CarState{
			CarID: carID, Status: status, Timestamp: nextTimestamp(s.now(), lastTS),
		}),
	}, registry.AddOptions{
		Checks: []registry.Check{registry.RefCheck(persistence.Cars, carID)},
	})
	if err != nil {
		return types.CarState{}, err
	}
	if err := s.evict(ctx, scope, car); err != nil {
		return types.CarState{}, err
	}
	return persistence.CarStateFromRow(stored[0]), nil
}

// List returns the car's state stream, honoring since and last_n.
func (s *CarStateService) List(ctx context.Context, scope registry.Scope, carID int64, q StreamQuery) ([]types.CarState, error) {
	if _, err := s.loadCar(ctx, scope, carID); err != nil {
		return nil, err
	}
	rows, err := s.records.Get(ctx, scope, persistence.CarStates, q.build(registry.Eq("car_id", carID)))
	if err != nil {
		return nil, err
	}
	rows = q.shape(rows)
	out := make([]types.CarState, len(rows))
	for i, r := range rows {
		out[i] = persistence.CarStateFromRow(r)
	}
	return out, nil
}

func (s *CarStateService) loadCar(ctx context.Context, scope registry.Scope, carID int64) (registry.Row, error) {
	rows, err := s.records.Get(ctx, scope, persistence.Cars, registry.Query{
		Criteria: registry.Criteria{registry.Eq(registry.ColID, carID)},
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, httperr.NewNotFound("Object not found", fmt.Sprintf("cars %d does not exist", carID))
	}
	return rows[0], nil
}

func (s *CarStateService) lastStatus(ctx context.Context, scope registry.Scope, carID int64) (types.CarStatus, int64, error) {
	rows, err := s.records.Get(ctx, scope, persistence.CarStates, registry.Query{
		Criteria: registry.Criteria{registry.Eq("car_id", carID)},
		Sort:     []registry.Sort{registry.Desc("timestamp")},
		Limit:    1,
	})
	if err != nil {
		return "", 0, err
	}
	if len(rows) == 0 {
		return "", 0, nil
	}
	state := persistence.CarStateFromRow(rows[0])
	return state.Status, state.Timestamp, nil
}

// evict trims the stream to the configured maximum, oldest rows first. With
// per-tenant scope the count spans every car of the owning tenant.
func (s *CarStateService) evict(ctx context.Context, scope registry.Scope, car registry.Row) error {
	if s.limits.MaxCarStates <= 0 {
		return nil
	}
	crit := registry.Criteria{registry.Eq("car_id", car.ID())}
	if s.limits.CarStateEviction == EvictPerTenant {
		crit = registry.Criteria{registry.Eq(registry.ColTenantID, car[registry.ColTenantID])}
	}
	n, err := s.records.Count(ctx, scope, persistence.CarStates, crit)
	if err != nil {
		return err
	}
	excess := int(n) - s.limits.MaxCarStates
	if excess <= 0 {
		return nil
	}
	_, err = s.records.DeleteN(ctx, persistence.CarStates, excess, registry.Asc("timestamp"), crit)
	return err
}

// nextTimestamp keeps stream timestamps strictly increasing even when the
// clock stalls or steps backwards.
func nextTimestamp(now, last int64) int64 {
	if now <= last {
		return last + 1
	}
	return now
}

// StreamQuery carries the three listing parameters every state-stream
// endpoint exposes: since (inclusive minimum timestamp), last_n (cap on the
// newest rows) and wait with its timeout.
type StreamQuery struct {
	Since   int64
	LastN   int
	Wait    bool
	Timeout time.Duration
}

func (q StreamQuery) build(conds ...registry.Cond) registry.Query {
	crit := registry.Criteria(conds)
	if q.Since > 0 {
		crit = append(crit, registry.Ge("timestamp", q.Since))
	}
	return registry.Query{
		Criteria: crit,
		Sort:     []registry.Sort{registry.Asc("timestamp")},
		Wait:     q.Wait,
		Timeout:  q.Timeout,
	}
}

// shape applies last_n: keep the newest rows, then restore ascending order.
func (q StreamQuery) shape(rows []registry.Row) []registry.Row {
	if q.LastN > 0 && len(rows) > q.LastN {
		rows = rows[len(rows)-q.LastN:]
	}
	return rows
}
