package roll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/chosenoffset/roll/pkg/roll/actions"
	"github.com/chosenoffset/roll/pkg/roll/metrics"
	"github.com/chosenoffset/roll/pkg/roll/parser"
)

// ErrInvalidCount reports a non-positive run or sample count.
var ErrInvalidCount = errors.New("count must be positive")

// Engine drives repeated evaluation of one expression: a list of values for
// display, or a histogram of scores for charts. Every value produced by Run
// is dispatched to the registered roll event handlers. An Engine is safe for
// concurrent use as long as each call gets its own Source.
type Engine struct {
	limits   *ResourceLimits
	logger   *slog.Logger
	registry *actions.Registry
	counters *metrics.RollCounters
}

type EngineOption func(*Engine)

func WithResourceLimits(limits *ResourceLimits) EngineOption {
	return func(e *Engine) {
		if limits != nil {
			e.limits = limits
		}
	}
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithRegistry(registry *actions.Registry) EngineOption {
	return func(e *Engine) {
		if registry != nil {
			e.registry = registry
		}
	}
}

func WithCounters(counters *metrics.RollCounters) EngineOption {
	return func(e *Engine) {
		if counters != nil {
			e.counters = counters
		}
	}
}

// NewEngine creates an engine with default limits, a discarding logger and
// an empty handler registry.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		limits:   DefaultResourceLimits(),
		logger:   slog.New(slog.DiscardHandler),
		registry: actions.NewRegistry(),
		counters: metrics.NewRollCounters(100),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Limits() *ResourceLimits         { return e.limits }
func (e *Engine) Registry() *actions.Registry     { return e.registry }
func (e *Engine) Counters() *metrics.RollCounters { return e.counters }

func (e *Engine) evaluator(src Source) *Evaluator {
	return NewEvaluator(src, WithLimits(e.limits))
}

func (e *Engine) prepare(expr parser.Expression, count int) error {
	if count <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	if err := checkLimit("runs", count, e.limits.MaxRuns); err != nil {
		return err
	}
	return Validate(expr, e.limits)
}

// Run evaluates expr count times against src. Values from successful runs
// are returned in order; failed runs are skipped and their errors joined.
// An invalid expression fails before anything is rolled.
func (e *Engine) Run(ctx context.Context, expr parser.Expression, src Source, count int) ([]*Value, error) {
	if err := e.prepare(expr, count); err != nil {
		e.fail(ctx, expr, err)
		return nil, err
	}

	ev := e.evaluator(src)
	values := make([]*Value, 0, count)
	var errs []error
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return values, err
		}

		v, err := ev.eval(expr)
		if err != nil {
			e.fail(ctx, expr, err)
			errs = append(errs, fmt.Errorf("run %d: %w", i+1, err))
			continue
		}

		values = append(values, v)
		e.counters.RecordRoll(v.Score(), v.Rolled(), v.Count(Bonus), v.Count(Discarded))
		event := actions.NewEvent(actions.RollEvent, expr.String(), v.String(), v.Score())
		event.Payload = v
		e.dispatch(ctx, event)
	}

	e.logger.Debug("run complete", "expression", expr.String(), "runs", count, "failures", len(errs))
	return values, errors.Join(errs...)
}

// Histogram evaluates expr samples times against src and tallies the scores.
// Any failed sample fails the whole histogram.
func (e *Engine) Histogram(ctx context.Context, expr parser.Expression, src Source, samples int) (*Histogram, error) {
	if err := e.prepare(expr, samples); err != nil {
		e.fail(ctx, expr, err)
		return nil, err
	}

	scores, err := e.sample(ctx, expr, e.evaluator(src), samples)
	if err != nil {
		e.fail(ctx, expr, err)
		return nil, err
	}

	h := NewHistogram(scores)
	e.publishHistogram(ctx, expr, h)
	return h, nil
}

// SampleParallel is Histogram split across workers goroutines. Worker i
// rolls with its own source seeded seed+i, so equal arguments give equal
// histograms. workers <= 0 means GOMAXPROCS.
func (e *Engine) SampleParallel(ctx context.Context, expr parser.Expression, samples, workers int, seed int64) (*Histogram, error) {
	if err := e.prepare(expr, samples); err != nil {
		e.fail(ctx, expr, err)
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, samples)

	g, gctx := errgroup.WithContext(ctx)
	parts := make([][]int, workers)
	for w := 0; w < workers; w++ {
		n := samples / workers
		if w < samples%workers {
			n++
		}
		g.Go(func() error {
			scores, err := e.sample(gctx, expr, e.evaluator(NewSource(seed+int64(w))), n)
			parts[w] = scores
			return err
		})
	}
	if err := g.Wait(); err != nil {
		e.fail(ctx, expr, err)
		return nil, err
	}

	scores := make([]int, 0, samples)
	for _, part := range parts {
		scores = append(scores, part...)
	}
	h := NewHistogram(scores)
	e.logger.Debug("parallel sampling complete", "expression", expr.String(), "workers", workers)
	e.publishHistogram(ctx, expr, h)
	return h, nil
}

func (e *Engine) sample(ctx context.Context, expr parser.Expression, ev *Evaluator, n int) ([]int, error) {
	scores := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v, err := ev.eval(expr)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i+1, err)
		}
		scores = append(scores, v.Score())
	}
	return scores, nil
}

func (e *Engine) publishHistogram(ctx context.Context, expr parser.Expression, h *Histogram) {
	e.logger.Debug("histogram complete", "expression", expr.String(), "samples", h.Samples, "buckets", len(h.Buckets), "mean", h.Mean())
	summary := fmt.Sprintf("%d samples, mean %.2f", h.Samples, h.Mean())
	event := actions.NewEvent(actions.HistogramEvent, expr.String(), summary, 0)
	event.Payload = h
	e.dispatch(ctx, event)
}

func (e *Engine) fail(ctx context.Context, expr parser.Expression, err error) {
	e.counters.RecordFailure()
	source := ""
	if expr != nil {
		source = expr.String()
	}
	e.logger.Warn("evaluation failed", "expression", source, "error", err)
	e.dispatch(ctx, actions.NewEvent(actions.FailureEvent, source, err.Error(), 0))
}

func (e *Engine) dispatch(ctx context.Context, event actions.Event) {
	if err := e.registry.Dispatch(ctx, event); err != nil {
		e.logger.Warn("roll event handler failed", "type", event.Type, "error", err)
	}
}
