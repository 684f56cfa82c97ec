// Package render writes rolled values and histograms for people and for
// other programs.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chosenoffset/roll/pkg/roll"
	"github.com/chosenoffset/roll/pkg/roll/parser"
)

type Mode string

const (
	ModeFull  Mode = "full"
	ModeValue Mode = "value"
	ModeChart Mode = "chart"
	ModeYAML  Mode = "yaml"
)

// Modes lists the accepted display modes in help order.
var Modes = []Mode{ModeFull, ModeValue, ModeChart, ModeYAML}

func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown display mode %q", s)
}

// maxBar is the widest chart bar, in characters, before scaling kicks in.
const maxBar = 50

// Full writes one line per value: the expression, then the dice listing.
//
//	2d4!: 4, 4, 4*, 1* = 13
func Full(w io.Writer, expr parser.Expression, values []*roll.Value) error {
	bw := bufio.NewWriter(w)
	for _, v := range values {
		fmt.Fprintf(bw, "%s: %s\n", expr, v)
	}
	return bw.Flush()
}

// Value writes each value's score on its own line.
func Value(w io.Writer, values []*roll.Value) error {
	bw := bufio.NewWriter(w)
	for _, v := range values {
		fmt.Fprintf(bw, "%d\n", v.Score())
	}
	return bw.Flush()
}

// Chart writes one row per score from the lowest to the highest seen:
// the score, the percentage of samples at least that high, and a bar
// proportional to the count. Scores that never came up get an empty row.
//
//	  3. 100.0: *
//	  4.  99.5: **
func Chart(w io.Writer, h *roll.Histogram) error {
	if h == nil || len(h.Buckets) == 0 {
		return nil
	}

	width := 1
	if most := h.MaxCount(); most >= maxBar {
		width = most / maxBar
	}

	bw := bufio.NewWriter(w)
	low, high := h.Buckets[0].Total, h.Buckets[len(h.Buckets)-1].Total
	i := 0
	for total := low; total <= high; total++ {
		b := h.Buckets[i]
		if b.Total != total {
			fmt.Fprintf(bw, "%3d. %5.1f:\n", total, b.AtLeast*100)
			continue
		}
		fmt.Fprintf(bw, "%3d. %5.1f: %s\n", total, b.AtLeast*100, strings.Repeat("*", b.Count/width+1))
		i++
	}
	return bw.Flush()
}

type yamlRoll struct {
	Expression string        `yaml:"expression"`
	Rolls      []*roll.Value `yaml:"rolls"`
}

type yamlChart struct {
	Expression string        `yaml:"expression"`
	Samples    int           `yaml:"samples"`
	Mean       float64       `yaml:"mean"`
	Buckets    []roll.Bucket `yaml:"buckets"`
}

// YAML writes the expression and every value as a YAML document.
func YAML(w io.Writer, expr parser.Expression, values []*roll.Value) error {
	return encodeYAML(w, yamlRoll{Expression: expr.String(), Rolls: values})
}

// ChartYAML writes a histogram as a YAML document.
func ChartYAML(w io.Writer, expr parser.Expression, h *roll.Histogram) error {
	return encodeYAML(w, yamlChart{
		Expression: expr.String(),
		Samples:    h.Samples,
		Mean:       h.Mean(),
		Buckets:    h.Buckets,
	})
}

func encodeYAML(w io.Writer, doc any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}

// Partial describes an incomplete parse for display next to the output
// of the parsed prefix.
func Partial(res *parser.Result) string {
	if res.Complete() {
		return ""
	}
	if res.Consumed == "" {
		return fmt.Sprintf("could not parse %q", res.Remaining)
	}
	return fmt.Sprintf("parsed %q, could not parse %q", res.Consumed, res.Remaining)
}
