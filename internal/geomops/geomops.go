// Package geomops is the boundary to the polygon boolean service. The core
// decides when to combine paths and where the results go; the set
// operations themselves are provided by an implementation of Combiner.
package geomops

import (
	"context"
	"errors"
	"fmt"

	"github.com/mapwright/mapwright/internal/document"
)

var ErrUnsupported = errors.New("geomops: boolean operations are not available")

type Operation string

const (
	Union        Operation = "union"
	Intersection Operation = "intersection"
	Exclusion    Operation = "exclusion"
)

func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case Union, Intersection, Exclusion:
		return op, nil
	}
	return "", fmt.Errorf("geomops: unknown operation %q", s)
}

// Combiner applies op to two path lists and returns new paths. Inputs must
// not be modified.
type Combiner interface {
	Combine(ctx context.Context, op Operation, primary, secondary []*document.Path) ([]*document.Path, error)
}

// Unavailable is the Combiner used when no boolean service is configured.
type Unavailable struct{}

func (Unavailable) Combine(context.Context, Operation, []*document.Path, []*document.Path) ([]*document.Path, error) {
	return nil, ErrUnsupported
}

// CombinerFunc adapts a function to Combiner.
type CombinerFunc func(ctx context.Context, op Operation, primary, secondary []*document.Path) ([]*document.Path, error)

func (f CombinerFunc) Combine(ctx context.Context, op Operation, primary, secondary []*document.Path) ([]*document.Path, error) {
	return f(ctx, op, primary, secondary)
}
