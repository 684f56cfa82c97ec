package parser

import (
	"bytes"
	"strconv"
	"strings"
)

type Node interface {
	TokenLiteral() string
	String() string
}

// Expression is any node that evaluates to a roll value. Trees are built
// once by the parser and never modified afterwards.
type Expression interface {
	Node
	expressionNode()
}

type NumberLiteral struct {
	Token Token // the INT token
	Value int
}

func (nl *NumberLiteral) expressionNode()      {}
func (nl *NumberLiteral) TokenLiteral() string { return nl.Token.Literal }
func (nl *NumberLiteral) String() string       { return strconv.Itoa(nl.Value) }

// DieSize is the number of faces on a die. Percentile is 1, 2 or 3 when the
// size was written as %, %% or %%%.
type DieSize struct {
	Faces      int
	Percentile int
}

// PercentileSize returns the size written with n percent markers.
func PercentileSize(n int) DieSize {
	faces := 10
	for i := 0; i < n; i++ {
		faces *= 10
	}
	return DieSize{Faces: faces, Percentile: n}
}

func (s DieSize) String() string {
	if s.Percentile > 0 {
		return strings.Repeat("%", s.Percentile)
	}
	return strconv.Itoa(s.Faces)
}

type ModifierKind int

const (
	ModNone ModifierKind = iota
	ModExplode
	ModExplodeUntil
	ModExplodeEach
	ModExplodeEachUntil
	ModAddEach
	ModSubtractEach
	ModTakeLow
	ModTakeHigh
	ModTakeMiddle
	ModAdvantage
	ModDisadvantage
	ModBestGroup
)

var modifierSymbols = map[ModifierKind]string{
	ModExplode:          "!",
	ModExplodeUntil:     "!!",
	ModExplodeEach:      "*",
	ModExplodeEachUntil: "**",
	ModAddEach:          "++",
	ModSubtractEach:     "--",
	ModTakeLow:          "`",
	ModTakeHigh:         "^",
	ModTakeMiddle:       "~",
	ModAdvantage:        "ADV",
	ModDisadvantage:     "DIS",
	ModBestGroup:        "Y",
}

func (k ModifierKind) String() string {
	if s, ok := modifierSymbols[k]; ok {
		return s
	}
	return ""
}

// Explodes reports whether the modifier rolls bonus dice.
func (k ModifierKind) Explodes() bool {
	return k == ModExplode || k == ModExplodeUntil || k == ModExplodeEach || k == ModExplodeEachUntil
}

// Repeats reports whether the modifier keeps exploding while new dice qualify.
func (k ModifierKind) Repeats() bool {
	return k == ModExplodeUntil || k == ModExplodeEachUntil
}

// Threshold is the explosion trigger. The zero value means the die's
// maximum face.
type Threshold struct {
	Value int
	Set   bool
}

// Resolve returns the effective threshold for a die with the given faces.
func (t Threshold) Resolve(faces int) int {
	if t.Set {
		return t.Value
	}
	return faces
}

// Modifier is the single optional operator attached to a pool. Threshold is
// used by the explode kinds, N by the others that take an argument.
type Modifier struct {
	Kind      ModifierKind
	Threshold Threshold
	N         int
}

func (m *Modifier) String() string {
	var out bytes.Buffer
	out.WriteString(m.Kind.String())
	switch m.Kind {
	case ModExplode, ModExplodeUntil, ModExplodeEach, ModExplodeEachUntil:
		if m.Threshold.Set {
			out.WriteString(strconv.Itoa(m.Threshold.Value))
		}
	case ModAddEach, ModSubtractEach, ModTakeLow, ModTakeHigh, ModTakeMiddle:
		out.WriteString(strconv.Itoa(m.N))
	}
	return out.String()
}

type Pool struct {
	Token    Token // the 'd' token
	Count    int
	Sides    DieSize
	Modifier *Modifier // nil when the pool has no modifier
}

func (p *Pool) expressionNode()      {}
func (p *Pool) TokenLiteral() string { return p.Token.Literal }
func (p *Pool) String() string {
	var out bytes.Buffer
	out.WriteString(strconv.Itoa(p.Count))
	out.WriteString("d")
	out.WriteString(p.Sides.String())
	if p.Modifier != nil {
		out.WriteString(p.Modifier.String())
	}
	return out.String()
}

type ArithmeticOp int

const (
	OpAdd ArithmeticOp = iota
	OpSubtract
)

func (op ArithmeticOp) String() string {
	if op == OpSubtract {
		return "-"
	}
	return "+"
}

// ArithmeticExpression is a Sum or a Difference of two sub-expressions.
type ArithmeticExpression struct {
	Token    Token // the + or - token
	Left     Expression
	Operator ArithmeticOp
	Right    Expression
}

func (ae *ArithmeticExpression) expressionNode()      {}
func (ae *ArithmeticExpression) TokenLiteral() string { return ae.Token.Literal }
func (ae *ArithmeticExpression) String() string {
	var out bytes.Buffer
	if ae.Left != nil {
		out.WriteString(ae.Left.String())
	}
	out.WriteString(" " + ae.Operator.String() + " ")
	if ae.Right != nil {
		out.WriteString(ae.Right.String())
	}
	return out.String()
}

type TargetKind int

const (
	TargetHigh TargetKind = iota // [n]: hit when die >= n
	TargetLow                    // (n): hit when die <= n
)

type TargetExpression struct {
	Token     Token // the [ or ( token
	Inner     Expression
	Kind      TargetKind
	Threshold int
}

func (te *TargetExpression) expressionNode()      {}
func (te *TargetExpression) TokenLiteral() string { return te.Token.Literal }
func (te *TargetExpression) String() string {
	var out bytes.Buffer
	out.WriteString(grouped(te.Inner))
	n := strconv.Itoa(te.Threshold)
	if te.Kind == TargetLow {
		out.WriteString("(" + n + ")")
	} else {
		out.WriteString("[" + n + "]")
	}
	return out.String()
}

type SuccessExpression struct {
	Token     Token // the { token
	Inner     Expression
	Threshold int
	Step      int
}

func (se *SuccessExpression) expressionNode()      {}
func (se *SuccessExpression) TokenLiteral() string { return se.Token.Literal }
func (se *SuccessExpression) String() string {
	var out bytes.Buffer
	if _, ok := se.Inner.(*TargetExpression); ok {
		out.WriteString(se.Inner.String())
	} else {
		out.WriteString(grouped(se.Inner))
	}
	out.WriteString("{" + strconv.Itoa(se.Threshold))
	if se.Step != 1 {
		out.WriteString("," + strconv.Itoa(se.Step))
	}
	out.WriteString("}")
	return out.String()
}

type CompareOp int

const (
	CompareGT CompareOp = iota
	CompareLT
	CompareGTE
	CompareLTE
	CompareEQ
	CompareSpaceship
)

var compareSymbols = map[CompareOp]string{
	CompareGT:        ">",
	CompareLT:        "<",
	CompareGTE:       ">=",
	CompareLTE:       "<=",
	CompareEQ:        "=",
	CompareSpaceship: "<=>",
}

func (op CompareOp) String() string { return compareSymbols[op] }

// ComparisonExpression only appears at the root of a tree.
type ComparisonExpression struct {
	Token    Token // the comparison operator token
	Left     Expression
	Operator CompareOp
	Right    Expression
}

func (ce *ComparisonExpression) expressionNode()      {}
func (ce *ComparisonExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *ComparisonExpression) String() string {
	var out bytes.Buffer
	if ce.Left != nil {
		out.WriteString(ce.Left.String())
	}
	out.WriteString(" " + ce.Operator.String() + " ")
	if ce.Right != nil {
		out.WriteString(ce.Right.String())
	}
	return out.String()
}

// grouped wraps arithmetic in parentheses so a trailing operator reads as
// applying to the whole sum.
func grouped(e Expression) string {
	if e == nil {
		return ""
	}
	if _, ok := e.(*ArithmeticExpression); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

// CountNodes returns the number of nodes in the tree rooted at e.
func CountNodes(e Expression) int {
	switch n := e.(type) {
	case nil:
		return 0
	case *ArithmeticExpression:
		return 1 + CountNodes(n.Left) + CountNodes(n.Right)
	case *TargetExpression:
		return 1 + CountNodes(n.Inner)
	case *SuccessExpression:
		return 1 + CountNodes(n.Inner)
	case *ComparisonExpression:
		return 1 + CountNodes(n.Left) + CountNodes(n.Right)
	default:
		return 1
	}
}
