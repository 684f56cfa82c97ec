package roll

import (
	"fmt"
	"strconv"
	"strings"
)

type Status int

const (
	Kept Status = iota
	Discarded
	Bonus
)

func (s Status) String() string {
	switch s {
	case Kept:
		return "kept"
	case Discarded:
		return "discarded"
	case Bonus:
		return "bonus"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "kept":
		*s = Kept
	case "discarded":
		*s = Discarded
	case "bonus":
		*s = Bonus
	default:
		return fmt.Errorf("unknown die status %q", text)
	}
	return nil
}

// Die is one entry of a rolled Value. Constant terms of an expression are
// carried as dice with zero Sides so they keep their place in the listing.
type Die struct {
	// Face is the face as rolled. Value is the face after ++/-- or, once a
	// target has been applied, 1 for a hit and 0 for a miss.
	Face   int    `json:"face" yaml:"face"`
	Value  int    `json:"value" yaml:"value"`
	Sides  int    `json:"sides,omitempty" yaml:"sides,omitempty"`
	Status Status `json:"status" yaml:"status"`

	// Negative dice count against the total: the right side of a difference.
	Negative bool `json:"negative,omitempty" yaml:"negative,omitempty"`
	Hit      bool `json:"hit,omitempty" yaml:"hit,omitempty"`
}

func (d Die) Constant() bool {
	return d.Sides == 0
}

// Contribution is what the die adds to its Value's total.
func (d Die) Contribution() int {
	switch {
	case d.Status == Discarded:
		return 0
	case d.Negative:
		return -d.Value
	default:
		return d.Value
	}
}

// String renders the die as listed in full output: the contribution, with
// a * suffix for bonus dice, or the adjusted value with a - suffix for
// discarded dice.
func (d Die) String() string {
	switch d.Status {
	case Discarded:
		return strconv.Itoa(d.Value) + "-"
	case Bonus:
		return strconv.Itoa(d.Contribution()) + "*"
	default:
		return strconv.Itoa(d.Contribution())
	}
}

// Value is the outcome of evaluating an expression. Values are built once
// and not modified afterwards; operators derive new dice instead.
//
// For a comparison, Dice is empty, Operands holds the two sides and Total is
// the comparison result.
type Value struct {
	Dice         []Die    `json:"dice,omitempty" yaml:"dice,omitempty"`
	Total        int      `json:"total" yaml:"total"`
	SuccessLevel *int     `json:"success_level,omitempty" yaml:"success_level,omitempty"`
	Operator     string   `json:"operator,omitempty" yaml:"operator,omitempty"`
	Operands     []*Value `json:"operands,omitempty" yaml:"operands,omitempty"`
}

func newValue(dice []Die) *Value {
	v := &Value{Dice: dice}
	for _, d := range dice {
		v.Total += d.Contribution()
	}
	return v
}

// Score is the number a comparison or a chart uses: the success level when
// one was computed, otherwise the total.
func (v *Value) Score() int {
	if v.SuccessLevel != nil {
		return *v.SuccessLevel
	}
	return v.Total
}

// Modifier returns the combined contribution of constant terms.
func (v *Value) Modifier() int {
	sum := 0
	for _, d := range v.Dice {
		if d.Constant() {
			sum += d.Contribution()
		}
	}
	return sum
}

// Count returns the number of non-constant dice with the given status.
func (v *Value) Count(status Status) int {
	n := 0
	for _, d := range v.Dice {
		if !d.Constant() && d.Status == status {
			n++
		}
	}
	for _, op := range v.Operands {
		n += op.Count(status)
	}
	return n
}

// Rolled returns the number of dice rolled to produce v.
func (v *Value) Rolled() int {
	return v.Count(Kept) + v.Count(Discarded) + v.Count(Bonus)
}

func (v *Value) String() string {
	if len(v.Operands) == 2 {
		return fmt.Sprintf("%s %s %s = %d", v.Operands[0], v.Operator, v.Operands[1], v.Total)
	}

	var out strings.Builder
	for i, d := range v.Dice {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(d.String())
	}
	if out.Len() > 0 {
		out.WriteString(" ")
	}
	fmt.Fprintf(&out, "= %d", v.Total)
	if v.SuccessLevel != nil {
		fmt.Fprintf(&out, " {%d}", *v.SuccessLevel)
	}
	return out.String()
}
