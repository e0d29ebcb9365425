package registry

import (
	"context"
	"fmt"

	"github.com/fleetgrid/fleetgrid/pkg/httperr"
)

// Check is a referential pre-condition evaluated in the same transaction as
// the write it guards: the target row must exist (unless AllowMissing) and
// satisfy every attribute predicate. One failing check rejects the whole
// batch.
type Check struct {
	Table        *Table
	ID           int64
	Conds        Criteria
	AllowMissing bool
}

// RefCheck builds an existence check for a referenced row.
func RefCheck(t *Table, id int64, conds ...Cond) Check {
	return Check{Table: t, ID: id, Conds: Criteria(conds)}
}

func runChecks(ctx context.Context, tx Tx, checks []Check) error {
	for _, c := range checks {
		rows, err := tx.Select(ctx, c.Table, Criteria{Eq(ColID, c.ID)}, nil, 1)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			if c.AllowMissing {
				continue
			}
			return httperr.NewNotFound("Referenced object not found",
				fmt.Sprintf("%s %d does not exist", c.Table.Name, c.ID))
		}
		if !c.Conds.Matches(rows[0]) {
			return httperr.NewNotFound("Referenced object not found",
				fmt.Sprintf("%s %d does not satisfy the required attributes", c.Table.Name, c.ID))
		}
	}
	return nil
}
