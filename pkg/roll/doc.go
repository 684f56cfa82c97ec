// Package roll parses and rolls dice expressions and collects statistics
// over repeated rolls.
//
// # Overview
//
// An expression such as "4d6^3 + 2" or "(2d6+3){10,2}" is parsed by the
// parser subpackage into an immutable tree, then resolved by an Evaluator
// against a Source of randomness into a Value: the individual dice, each
// marked kept, discarded or bonus, their total, and a success level when the
// expression asked for one.
//
// # Quick Start
//
//	res := parser.Parse("3d6!")
//	if res.Expression == nil {
//		log.Fatal(res.Err)
//	}
//
//	ev := roll.NewEvaluator(roll.NewSource(42))
//	v, err := ev.Eval(res.Expression)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(v) // e.g. "4, 2, 6 = 12"
//
// # Notation
//
//	NdS        N dice with S faces; N defaults to 1, S may be %, %% or %%%
//	           for 100, 1000 or 10000 faces
//	NdS!  !!   roll a bonus set when every die meets the threshold
//	           (max face, or NdS!T); !! repeats while the newest set does
//	NdS*  **   each die meeting the threshold adds a bonus die; ** repeats
//	NdS++n     add n (default 1) to each die; -- subtracts
//	NdS^n `n   keep the n highest / lowest dice
//	NdS~n      keep the n middle dice
//	ADV DIS    roll the pool twice, keep the higher / lower total
//	Y          keep the largest group of equal dice
//	a + b, a - b
//	expr[n]    count dice >= n as hits; expr(n) counts dice <= n
//	expr{n,m}  success level 1 + (total-n)/m when total >= n, else 0
//	a > b      also <, >=, <=, = (1 or 0) and <=> (-1, 0 or 1)
//
// # Architecture
//
//   - parser: lexer, tree and parser with partial-parse recovery
//   - Evaluator: pool resolution, targets, success levels, comparisons
//   - Engine: repeated runs, histograms and parallel sampling
//   - actions: handlers notified of every roll, histogram and failure
//   - metrics: roll counters and HTTP statistics
//   - dashboard: HTTP and websocket server for remote rolling
//   - render: full, value, chart and YAML output
package roll
