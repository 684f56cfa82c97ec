package roll

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/chosenoffset/roll/pkg/roll/parser"
)

// Evaluator resolves expression trees against a Source. It holds no state
// between evaluations apart from the Source itself, and like the Source it
// must not be shared between goroutines.
type Evaluator struct {
	src    Source
	limits ResourceLimits
}

type Option func(*Evaluator)

// WithLimits bounds pool sizes, explosion rounds and tree size. Without it
// nothing is bounded.
func WithLimits(limits *ResourceLimits) Option {
	return func(e *Evaluator) {
		if limits != nil {
			e.limits = *limits
		}
	}
}

func NewEvaluator(src Source, opts ...Option) *Evaluator {
	e := &Evaluator{src: src}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Eval validates expr and rolls it. Errors match ErrInvalidPool,
// ErrNonTerminatingExplosion, ErrInvalidModifierArgument, ErrLimitExceeded
// or ErrNilExpression; no dice are rolled for an expression that fails
// validation.
func (e *Evaluator) Eval(expr parser.Expression) (*Value, error) {
	if err := Validate(expr, &e.limits); err != nil {
		return nil, err
	}
	return e.eval(expr)
}

// eval assumes expr has been validated.
func (e *Evaluator) eval(expr parser.Expression) (*Value, error) {
	switch node := expr.(type) {
	case *parser.NumberLiteral:
		return newValue([]Die{{Face: node.Value, Value: node.Value, Status: Kept}}), nil

	case *parser.Pool:
		dice, err := e.evalPool(node)
		if err != nil {
			return nil, err
		}
		return newValue(dice), nil

	case *parser.ArithmeticExpression:
		left, err := e.eval(node.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.eval(node.Right)
		if err != nil {
			return nil, err
		}
		return combine(left, right, node.Operator), nil

	case *parser.TargetExpression:
		inner, err := e.eval(node.Inner)
		if err != nil {
			return nil, err
		}
		return applyTarget(inner, node.Kind, node.Threshold), nil

	case *parser.SuccessExpression:
		inner, err := e.eval(node.Inner)
		if err != nil {
			return nil, err
		}
		return applySuccess(inner, node.Threshold, node.Step), nil

	case *parser.ComparisonExpression:
		left, err := e.eval(node.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.eval(node.Right)
		if err != nil {
			return nil, err
		}
		return compare(left, right, node.Operator), nil

	default:
		return nil, fmt.Errorf("unknown node type: %T", expr)
	}
}

func (e *Evaluator) evalPool(p *parser.Pool) ([]Die, error) {
	faces := p.Sides.Faces
	m := p.Modifier
	if m == nil {
		return e.roll(p.Count, faces, Kept), nil
	}

	switch m.Kind {
	case parser.ModExplode, parser.ModExplodeUntil:
		return e.explodePool(p.Count, faces, m)
	case parser.ModExplodeEach, parser.ModExplodeEachUntil:
		return e.explodeEach(p.Count, faces, m)
	case parser.ModAddEach:
		return adjust(e.roll(p.Count, faces, Kept), m.N), nil
	case parser.ModSubtractEach:
		return adjust(e.roll(p.Count, faces, Kept), -m.N), nil
	case parser.ModTakeLow, parser.ModTakeHigh, parser.ModTakeMiddle:
		return take(e.roll(p.Count, faces, Kept), m.Kind, m.N), nil
	case parser.ModAdvantage, parser.ModDisadvantage:
		first := e.roll(p.Count, faces, Kept)
		second := e.roll(p.Count, faces, Kept)
		return pickInstance(first, second, m.Kind == parser.ModAdvantage), nil
	case parser.ModBestGroup:
		return bestGroup(e.roll(p.Count, faces, Kept)), nil
	default:
		return e.roll(p.Count, faces, Kept), nil
	}
}

func (e *Evaluator) roll(count, faces int, status Status) []Die {
	dice := make([]Die, count)
	for i := range dice {
		dice[i] = e.rollDie(faces, status)
	}
	return dice
}

func (e *Evaluator) rollDie(faces int, status Status) Die {
	face := e.src.Roll(faces)
	return Die{Face: face, Value: face, Sides: faces, Status: status}
}

// explodePool rolls a fresh set of bonus dice while every die of the newest
// set meets the threshold. ! stops after one bonus set.
func (e *Evaluator) explodePool(count, faces int, m *parser.Modifier) ([]Die, error) {
	dice := e.roll(count, faces, Kept)
	threshold := m.Threshold.Resolve(faces)

	newest := dice
	for round := 1; count > 0 && allMeet(newest, threshold); round++ {
		if err := checkLimit("explosion rounds", round, e.limits.MaxExplosionRounds); err != nil {
			return nil, err
		}
		newest = e.roll(count, faces, Bonus)
		dice = append(dice, newest...)
		if !m.Kind.Repeats() {
			break
		}
	}
	return dice, nil
}

// explodeEach gives every die meeting the threshold its own bonus die; **
// keeps rolling while the latest bonus die meets it too. Bonus dice follow
// the original dice in roll order.
func (e *Evaluator) explodeEach(count, faces int, m *parser.Modifier) ([]Die, error) {
	dice := e.roll(count, faces, Kept)
	threshold := m.Threshold.Resolve(faces)

	var bonus []Die
	for _, d := range dice {
		last := d
		for round := 1; last.Value >= threshold; round++ {
			if err := checkLimit("explosion rounds", round, e.limits.MaxExplosionRounds); err != nil {
				return nil, err
			}
			last = e.rollDie(faces, Bonus)
			bonus = append(bonus, last)
			if !m.Kind.Repeats() {
				break
			}
		}
	}
	return append(dice, bonus...), nil
}

func allMeet(dice []Die, threshold int) bool {
	for _, d := range dice {
		if d.Value < threshold {
			return false
		}
	}
	return true
}

func adjust(dice []Die, delta int) []Die {
	out := make([]Die, len(dice))
	for i, d := range dice {
		d.Value = d.Face + delta
		out[i] = d
	}
	return out
}

// take keeps n dice chosen by value. Equal values keep the earlier die for
// ^ and `. For ~ an odd number of excluded dice drops the extra one from
// the low end.
func take(dice []Die, kind parser.ModifierKind, n int) []Die {
	if n >= len(dice) {
		return dice
	}

	order := make([]int, len(dice))
	for i := range order {
		order[i] = i
	}
	if kind == parser.ModTakeHigh {
		slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(dice[b].Value, dice[a].Value) })
	} else {
		slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(dice[a].Value, dice[b].Value) })
	}

	from := 0
	if kind == parser.ModTakeMiddle {
		from = (len(dice) - n + 1) / 2
	}
	keep := make([]bool, len(dice))
	for _, i := range order[from : from+n] {
		keep[i] = true
	}

	out := make([]Die, len(dice))
	for i, d := range dice {
		if !keep[i] {
			d.Status = Discarded
		}
		out[i] = d
	}
	return out
}

// pickInstance keeps the instance with the higher total (or the lower, for
// disadvantage) and discards the other. A tie keeps the first.
func pickInstance(first, second []Die, higher bool) []Die {
	a, b := sumDice(first), sumDice(second)
	keepFirst := a >= b
	if !higher {
		keepFirst = a <= b
	}
	if keepFirst {
		second = discardAll(second)
	} else {
		first = discardAll(first)
	}
	return append(first, second...)
}

func sumDice(dice []Die) int {
	sum := 0
	for _, d := range dice {
		sum += d.Contribution()
	}
	return sum
}

func discardAll(dice []Die) []Die {
	out := make([]Die, len(dice))
	for i, d := range dice {
		d.Status = Discarded
		out[i] = d
	}
	return out
}

// bestGroup keeps the most common value, the higher value on a tie.
func bestGroup(dice []Die) []Die {
	counts := make(map[int]int)
	for _, d := range dice {
		counts[d.Value]++
	}

	best, bestCount := 0, 0
	for value, count := range counts {
		if count > bestCount || (count == bestCount && value > best) {
			best, bestCount = value, count
		}
	}

	out := make([]Die, len(dice))
	for i, d := range dice {
		if d.Value != best {
			d.Status = Discarded
		}
		out[i] = d
	}
	return out
}

func combine(left, right *Value, op parser.ArithmeticOp) *Value {
	dice := make([]Die, 0, len(left.Dice)+len(right.Dice))
	dice = append(dice, left.Dice...)
	for _, d := range right.Dice {
		if op == parser.OpSubtract {
			d.Negative = !d.Negative
		}
		dice = append(dice, d)
	}
	return newValue(dice)
}

// applyTarget recodes every contributing die to a hit (1) or a miss (0).
// Constants pass through unchanged.
func applyTarget(v *Value, kind parser.TargetKind, threshold int) *Value {
	dice := make([]Die, len(v.Dice))
	for i, d := range v.Dice {
		if !d.Constant() && d.Status != Discarded {
			if kind == parser.TargetLow {
				d.Hit = d.Value <= threshold
			} else {
				d.Hit = d.Value >= threshold
			}
			d.Value = 0
			if d.Hit {
				d.Value = 1
			}
		}
		dice[i] = d
	}
	return newValue(dice)
}

func applySuccess(v *Value, threshold, step int) *Value {
	level := 0
	if v.Total >= threshold {
		level = 1 + (v.Total-threshold)/step
	}
	return &Value{Dice: v.Dice, Total: v.Total, SuccessLevel: &level}
}

func compare(left, right *Value, op parser.CompareOp) *Value {
	l, r := left.Score(), right.Score()

	var holds bool
	switch op {
	case parser.CompareGT:
		holds = l > r
	case parser.CompareLT:
		holds = l < r
	case parser.CompareGTE:
		holds = l >= r
	case parser.CompareLTE:
		holds = l <= r
	case parser.CompareEQ:
		holds = l == r
	case parser.CompareSpaceship:
		return &Value{Total: cmp.Compare(l, r), Operator: op.String(), Operands: []*Value{left, right}}
	}

	result := 0
	if holds {
		result = 1
	}
	return &Value{Total: result, Operator: op.String(), Operands: []*Value{left, right}}
}
