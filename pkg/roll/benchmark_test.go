package roll

import (
	"context"
	"testing"

	"github.com/chosenoffset/roll/pkg/roll/parser"
)

// BenchmarkParse benchmarks parsing a representative expression
func BenchmarkParse(b *testing.B) {
	for i := 0; i < b.N; i++ {
		res := parser.Parse("(4d6^3 + 2d8!! - 3)[5]{2,2}")
		if res.Err != nil {
			b.Fatal(res.Err)
		}
	}
}

// BenchmarkEvalPool benchmarks a plain pool roll
func BenchmarkEvalPool(b *testing.B) {
	expr := mustParse(b, "10d6")
	ev := NewEvaluator(NewSource(1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ev.Eval(expr); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkEvalModifiers benchmarks a mix of selection and explosion
func BenchmarkEvalModifiers(b *testing.B) {
	expr := mustParse(b, "4d6^3 + 2d20ADV + 5d6Y + 3d6** > 20")
	ev := NewEvaluator(NewSource(1), WithLimits(DefaultResourceLimits()))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ev.Eval(expr); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkHistogram benchmarks the default chart sample count
func BenchmarkHistogram(b *testing.B) {
	expr := mustParse(b, "3d6")
	engine := NewEngine()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Histogram(context.Background(), expr, NewSource(int64(i)), 10000); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSampleParallel benchmarks the same sampling split across workers
func BenchmarkSampleParallel(b *testing.B) {
	expr := mustParse(b, "3d6")
	engine := NewEngine()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.SampleParallel(context.Background(), expr, 10000, 0, int64(i)); err != nil {
			b.Fatal(err)
		}
	}
}
