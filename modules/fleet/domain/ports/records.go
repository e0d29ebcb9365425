package ports

import (
	"context"

	"github.com/fleetgrid/fleetgrid/internal/registry"
)

// Records is the record-store contract the fleet services depend on.
// *registry.Store satisfies it.
type Records interface {
	Add(ctx context.Context, scope registry.Scope, t *registry.Table, rows []registry.Row, opts registry.AddOptions) ([]registry.Row, error)
	Get(ctx context.Context, scope registry.Scope, t *registry.Table, q registry.Query) ([]registry.Row, error)
	Update(ctx context.Context, scope registry.Scope, t *registry.Table, id int64, r registry.Row, checks ...registry.Check) (registry.Row, error)
	Delete(ctx context.Context, scope registry.Scope, t *registry.Table, id int64) error
	DeleteN(ctx context.Context, t *registry.Table, n int, key registry.Sort, crit registry.Criteria) (int, error)
	Exists(ctx context.Context, scope registry.Scope, t *registry.Table, crit registry.Criteria) (bool, error)
	Count(ctx context.Context, scope registry.Scope, t *registry.Table, crit registry.Criteria) (int64, error)
}
