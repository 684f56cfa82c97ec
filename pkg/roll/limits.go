package roll

import (
	"errors"
	"fmt"

	"github.com/chosenoffset/roll/pkg/roll/parser"
)

// ResourceLimits bounds the work a single expression may ask for.
// A zero field disables that limit.
type ResourceLimits struct {
	MaxPoolSize        int // dice rolled per pool instance
	MaxExplosionRounds int // bonus rounds per pool (or per die for * and **)
	MaxRuns            int // values per Run or samples per Histogram
	MaxExpressionNodes int // nodes in a parsed tree
}

// DefaultResourceLimits returns reasonable default limits
func DefaultResourceLimits() *ResourceLimits {
	return &ResourceLimits{
		MaxPoolSize:        10000,
		MaxExplosionRounds: 100,
		MaxRuns:            1000000,
		MaxExpressionNodes: 256,
	}
}

// ResourceLimitError represents a resource limit violation
type ResourceLimitError struct {
	Resource string
	Current  int
	Limit    int
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded: %d > %d", e.Resource, e.Current, e.Limit)
}

func (e *ResourceLimitError) Unwrap() error {
	return ErrLimitExceeded
}

// IsResourceLimitError checks if an error is a resource limit violation
func IsResourceLimitError(err error) bool {
	var rle *ResourceLimitError
	return errors.As(err, &rle)
}

func checkLimit(resource string, current, limit int) error {
	if limit > 0 && current > limit {
		return &ResourceLimitError{Resource: resource, Current: current, Limit: limit}
	}
	return nil
}

// Validate checks expr without rolling anything: tree size, pool shapes,
// modifier arguments and explosions that could never stop. limits may be
// nil. Validate returns the first problem found.
func Validate(expr parser.Expression, limits *ResourceLimits) error {
	if expr == nil {
		return ErrNilExpression
	}
	if limits != nil {
		if err := checkLimit("expression nodes", parser.CountNodes(expr), limits.MaxExpressionNodes); err != nil {
			return err
		}
	}
	return validateNode(expr, limits)
}

func validateNode(expr parser.Expression, limits *ResourceLimits) error {
	switch node := expr.(type) {
	case *parser.NumberLiteral:
		return nil
	case *parser.Pool:
		return validatePool(node, limits)
	case *parser.ArithmeticExpression:
		if err := validateNode(node.Left, limits); err != nil {
			return err
		}
		return validateNode(node.Right, limits)
	case *parser.TargetExpression:
		return validateNode(node.Inner, limits)
	case *parser.SuccessExpression:
		if node.Step <= 0 {
			return fmt.Errorf("%w: success step %d must be positive", ErrInvalidModifierArgument, node.Step)
		}
		return validateNode(node.Inner, limits)
	case *parser.ComparisonExpression:
		if err := validateNode(node.Left, limits); err != nil {
			return err
		}
		return validateNode(node.Right, limits)
	case nil:
		return ErrNilExpression
	default:
		return fmt.Errorf("unknown node type: %T", expr)
	}
}

func validatePool(p *parser.Pool, limits *ResourceLimits) error {
	if p == nil {
		return ErrNilExpression
	}
	if p.Count < 0 {
		return fmt.Errorf("%w: negative count %d", ErrInvalidPool, p.Count)
	}
	if p.Sides.Faces <= 0 {
		return fmt.Errorf("%w: die size %d", ErrInvalidPool, p.Sides.Faces)
	}
	if limits != nil {
		if err := checkLimit("pool size", p.Count, limits.MaxPoolSize); err != nil {
			return err
		}
	}

	m := p.Modifier
	if m == nil {
		return nil
	}
	switch m.Kind {
	case parser.ModAddEach, parser.ModSubtractEach, parser.ModTakeLow, parser.ModTakeHigh, parser.ModTakeMiddle:
		if m.N < 0 {
			return fmt.Errorf("%w: %s%d", ErrInvalidModifierArgument, m.Kind, m.N)
		}
	}
	if m.Kind.Repeats() && p.Count > 0 && m.Threshold.Resolve(p.Sides.Faces) <= 1 {
		return fmt.Errorf("%w: %s", ErrNonTerminatingExplosion, p)
	}
	return nil
}
