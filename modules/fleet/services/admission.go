package services

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// AdmissionRule is an optional operator-supplied CEL expression consulted
// before a new active order is admitted. The expression sees a single map
// variable `ctx` with car_id, active, limit and tenant, and must evaluate to
// a bool; true admits the order. Compilation is lazy and cached.
type AdmissionRule struct {
	expr string

	once sync.Once
	prg  cel.Program
	err  error
}

func NewAdmissionRule(expr string) *AdmissionRule {
	return &AdmissionRule{expr: expr}
}

func (r *AdmissionRule) compile() {
	env, err := cel.NewEnv(
		cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		r.err = fmt.Errorf("admission rule env: %w", err)
		return
	}
	ast, iss := env.Compile(r.expr)
	if iss != nil && iss.Err() != nil {
		r.err = fmt.Errorf("admission rule compile: %w", iss.Err())
		return
	}
	prg, err := env.Program(ast)
	if err != nil {
		r.err = fmt.Errorf("admission rule program: %w", err)
		return
	}
	r.prg = prg
}

// Allow evaluates the rule; a nil rule or empty expression admits everything.
func (r *AdmissionRule) Allow(input map[string]any) (bool, error) {
	if r == nil || r.expr == "" {
		return true, nil
	}
	r.once.Do(r.compile)
	if r.err != nil {
		return false, r.err
	}
	out, _, err := r.prg.Eval(map[string]any{"ctx": input})
	if err != nil {
		return false, fmt.Errorf("admission rule eval: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("admission rule returned %T, want bool", out.Value())
	}
	return allowed, nil
}
