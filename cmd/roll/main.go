// Command roll rolls dice expressions and charts their distributions.
//
// Usage:
//
//	roll [flags] EXPRESSION...
//	roll serve [--addr=:9090]
//
// Examples:
//
//	roll 4d6^3
//	roll -c 6 -d value 4d6^3
//	roll -d chart 2d20ADV
//	roll --seed 42 "(3d6+2){10,3}"
//
// Exit status is 0 on success, 1 for usage or configuration errors, 2 when
// an evaluation fails and 3 when only part of the expression could be
// parsed. The parsed part is still rolled in that case.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/chosenoffset/roll/internal/config"
	"github.com/chosenoffset/roll/internal/logger"
	"github.com/chosenoffset/roll/internal/random"
	"github.com/chosenoffset/roll/pkg/roll"
	"github.com/chosenoffset/roll/pkg/roll/actions"
	"github.com/chosenoffset/roll/pkg/roll/dashboard"
	"github.com/chosenoffset/roll/pkg/roll/metrics"
	"github.com/chosenoffset/roll/pkg/roll/parser"
	"github.com/chosenoffset/roll/pkg/roll/render"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitEval    = 2
	exitPartial = 3
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type cli struct {
	Config string `help:"Path to a YAML config file." type:"path" env:"ROLL_CONFIG"`

	Roll  rollCmd  `cmd:"" default:"withargs" help:"Roll a dice expression."`
	Serve serveCmd `cmd:"" help:"Serve rolls, charts and a live event stream over HTTP."`
}

// app carries what every command needs once flags and config are loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func (a *app) engine(registry *actions.Registry, counters *metrics.RollCounters) *roll.Engine {
	return roll.NewEngine(
		roll.WithResourceLimits(a.cfg.Limits.ResourceLimits()),
		roll.WithLogger(a.logger),
		roll.WithRegistry(registry),
		roll.WithCounters(counters),
	)
}

// eventRegistry logs every engine event.
func (a *app) eventRegistry() *actions.Registry {
	registry := actions.NewRegistry()
	handler := actions.NewLogHandler(a.logger)
	for _, t := range []actions.EventType{actions.RollEvent, actions.HistogramEvent, actions.FailureEvent} {
		registry.Register(t, handler)
	}
	return registry
}

type rollCmd struct {
	Display string   `short:"d" help:"Display mode: full, value, chart or yaml."`
	Count   int      `short:"c" help:"Number of rolls."`
	Samples int      `help:"Samples drawn for chart display."`
	Workers int      `default:"-1" help:"Goroutines used to sample charts (0 samples inline)."`
	Seed    int64    `help:"Seed for a reproducible roll (0 draws one)."`
	Expr    []string `arg:"" help:"Dice expression. Words are joined with spaces."`
}

func (c *rollCmd) Run(a *app) error {
	mode, err := c.mode(a.cfg)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	count := orDefault(c.Count, a.cfg.Roll.Count)
	samples := orDefault(c.Samples, a.cfg.Roll.ChartSamples)
	workers := a.cfg.Roll.Workers
	if c.Workers >= 0 {
		workers = c.Workers
	}
	if count < 1 || samples < 1 {
		return &exitError{code: exitUsage, err: errors.New("count and samples must be positive")}
	}

	res := parser.Parse(strings.Join(c.Expr, " "))
	if res.Expression == nil {
		return &exitError{code: exitUsage, err: errors.New(render.Partial(res))}
	}

	seed := c.Seed
	if seed == 0 {
		seed = a.cfg.Roll.Seed
	}
	if seed, err = random.Resolve(seed); err != nil {
		return err
	}
	a.logger.Debug("rolling", "expression", res.Expression.String(), "mode", mode, "seed", seed)

	engine := a.engine(a.eventRegistry(), metrics.NewRollCounters(count))
	ctx := context.Background()

	var evalErr error
	switch mode {
	case render.ModeChart:
		var h *roll.Histogram
		if workers > 0 {
			h, evalErr = engine.SampleParallel(ctx, res.Expression, samples, workers, seed)
		} else {
			h, evalErr = engine.Histogram(ctx, res.Expression, roll.NewSource(seed), samples)
		}
		if evalErr == nil {
			err = render.Chart(a.stdout, h)
		}
	default:
		var values []*roll.Value
		values, evalErr = engine.Run(ctx, res.Expression, roll.NewSource(seed), count)
		if len(values) > 0 {
			err = writeValues(a.stdout, mode, res.Expression, values)
		}
	}
	if err != nil {
		return err
	}

	if evalErr != nil {
		return &exitError{code: exitEval, err: evalErr}
	}
	if !res.Complete() {
		return &exitError{code: exitPartial, err: errors.New(render.Partial(res))}
	}
	return nil
}

func (c *rollCmd) mode(cfg *config.Config) (render.Mode, error) {
	if c.Display != "" {
		return render.ParseMode(c.Display)
	}
	return render.ParseMode(cfg.Roll.Display)
}

func writeValues(w io.Writer, mode render.Mode, expr parser.Expression, values []*roll.Value) error {
	switch mode {
	case render.ModeValue:
		return render.Value(w, values)
	case render.ModeYAML:
		return render.YAML(w, expr, values)
	default:
		return render.Full(w, expr, values)
	}
}

func orDefault(flag, fallback int) int {
	if flag != 0 {
		return flag
	}
	return fallback
}

type serveCmd struct {
	Addr string `help:"Listen address (overrides config)."`
	Echo bool   `help:"Print every roll event to stdout."`
}

func (c *serveCmd) Run(a *app) error {
	cfg := a.cfg.Dashboard
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}

	registry := a.eventRegistry()
	if c.Echo {
		registry.Register(actions.RollEvent, actions.NewConsoleHandler(a.stdout))
	}
	engine := a.engine(registry, metrics.NewRollCounters(100))

	srv := dashboard.NewServer(engine,
		dashboard.WithAddr(cfg.Addr),
		dashboard.WithMaxClients(cfg.MaxClients),
		dashboard.WithOriginCheck(func(r *http.Request) bool {
			return cfg.IsOriginAllowed(r.Header.Get("Origin"), r.Host)
		}),
		dashboard.WithLogger(a.logger),
		dashboard.WithChartDefaults(a.cfg.Roll.ChartSamples, a.cfg.Roll.Workers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop()
	})
	fmt.Fprintf(a.stdout, "roll dashboard listening on %s\n", cfg.Addr)
	return g.Wait()
}

func run(args []string, stdout, stderr io.Writer) int {
	var cmd cli
	exitCode := -1
	k, err := kong.New(&cmd,
		kong.Name("roll"),
		kong.Description("Roll dice expressions and chart their distributions."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) {
			if exitCode < 0 {
				exitCode = code
			}
		}),
	)
	if err != nil {
		fmt.Fprintf(stderr, "roll: %v\n", err)
		return exitUsage
	}

	kctx, err := k.Parse(args)
	if exitCode >= 0 {
		return exitCode
	}
	if err != nil {
		fmt.Fprintf(stderr, "roll: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load(cmd.Config)
	if err != nil {
		fmt.Fprintf(stderr, "roll: %v\n", err)
		return exitUsage
	}
	log, closer, err := logger.New(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "roll: %v\n", err)
		return exitUsage
	}
	defer closer.Close()

	err = kctx.Run(&app{cfg: cfg, logger: log, stdout: stdout, stderr: stderr})
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "roll: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUsage
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
